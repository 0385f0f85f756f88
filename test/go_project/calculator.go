package main

import (
	"fmt"
	"os"
)

func add(a, b int) int {
	sum := a + b
	return sum
}

func divide(a, b int) (int, error) {
	if b == 0 {
		return 0, fmt.Errorf("cannot divide by zero")
	}
	return a / b, nil
}

func factorial(n int) int {
	result := 1
	for i := 2; i <= n; i++ {
		result *= i
	}
	return result
}

// main prints a few results, reports a division by zero on stderr and exits
// with status 3 so tests can check the exit status a debugger reports.
func main() {
	fmt.Printf("5 + 3 = %d\n", add(5, 3))
	fmt.Printf("5! = %d\n", factorial(5))

	if _, err := divide(1, 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}
