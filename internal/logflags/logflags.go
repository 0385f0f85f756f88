// Package logflags decides which layers of debugify log and hands out the
// per-layer loggers.
package logflags

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var session = false
var dapWire = false
var pump = false
var mcp = false

var output io.Writer = os.Stderr

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Out = output
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Session returns true if the session package should log.
func Session() bool {
	return session
}

// SessionLogger returns a logger for the session package.
func SessionLogger() *logrus.Entry {
	return makeLogger(session, logrus.Fields{"layer": "session"})
}

// DAP returns true if the DAP client should log every message exchanged
// with the adapter.
func DAP() bool {
	return dapWire
}

// DAPLogger returns a logger for the DAP transport and backend.
func DAPLogger() *logrus.Entry {
	return makeLogger(dapWire, logrus.Fields{"layer": "dap"})
}

// Pump returns true if the event pump should log.
func Pump() bool {
	return pump
}

func PumpLogger() *logrus.Entry {
	return makeLogger(pump, logrus.Fields{"layer": "pump"})
}

// MCP returns true if tool invocations should be logged.
func MCP() bool {
	return mcp
}

func MCPLogger() *logrus.Entry {
	return makeLogger(mcp, logrus.Fields{"layer": "mcp"})
}

// SetOutput redirects loggers created after the call. Stdout is reserved for
// the MCP protocol, so the default is stderr.
func SetOutput(w io.Writer) {
	output = w
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	log.SetOutput(output)
	if logstr == "" {
		logstr = "session"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch strings.TrimSpace(logcmd) {
		case "session":
			session = true
		case "dap":
			dapWire = true
		case "pump":
			pump = true
		case "mcp":
			mcp = true
		}
	}
	return nil
}

// reset clears every flag. Used by tests.
func reset() {
	session = false
	dapWire = false
	pump = false
	mcp = false
	output = os.Stderr
}
