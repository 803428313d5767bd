// ABOUTME: Test entry point for the controller suite
// ABOUTME: Fails the package if any test leaks a goroutine of its own

package app

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// badger pulls in glog, which starts its flush daemon at init.
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
	)
}
