package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var bridge = false
var proc = false
var hook = false
var fnCall = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Bridge returns true if the command bridge should log protocol traffic.
func Bridge() bool {
	return bridge
}

// BridgeLogger returns a logger for the command bridge.
func BridgeLogger() *logrus.Entry {
	return makeLogger(bridge, logrus.Fields{"layer": "bridge"})
}

// Proc returns true if the proc package should log.
func Proc() bool {
	return proc
}

// ProcLogger returns a logger for the proc package.
func ProcLogger() *logrus.Entry {
	return makeLogger(proc, logrus.Fields{"layer": "proc"})
}

// Hook returns true if interceptor install/uninstall and the tick pump
// should be logged.
func Hook() bool {
	return hook
}

// HookLogger returns a logger for the interceptor.
func HookLogger() *logrus.Entry {
	return makeLogger(hook, logrus.Fields{"layer": "hook"})
}

// FnCall returns true if remote routine calls should be logged.
func FnCall() bool {
	return fnCall
}

func FnCallLogger() *logrus.Entry {
	return makeLogger(fnCall, logrus.Fields{"layer": "proc", "kind": "fncall"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "bridge"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "bridge":
			bridge = true
		case "proc":
			proc = true
		case "hook":
			hook = true
		case "fncall":
			fnCall = true
		}
	}
	return nil
}
