// File: shutdown/signal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gamedolphin/gafferchallenge/internal/mlog"
)

// NotifySignals cancels t on the first SIGINT or SIGTERM. Subsequent signals are
// logged and ignored. The returned stop function detaches the handler.
func NotifySignals(t *Token, log *mlog.Logger, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if log == nil {
		log = mlog.New("shutdown")
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				if t.Cancel() {
					log.Infof("received %s, shutting down", sig)
				} else {
					log.Debugf("received %s, shutdown already in progress", sig)
				}
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
