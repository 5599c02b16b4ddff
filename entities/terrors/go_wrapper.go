//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

package terrors

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// GoWrapper runs f on a fresh goroutine and turns panics into error logs
// instead of process crashes. Long-running background loops (sync workers,
// RPC routines) must be spawned through it.
func GoWrapper(f func(), logger logrus.FieldLogger) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("recovered from panic: %v", r)
				debug.PrintStack()
			}
		}()
		f()
	}()
}
