// Package logger は標準 log にレベル接頭辞を付け、設定があれば Rollbar にも送る。
package logger

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/rollbar/rollbar-go"
)

var reporting atomic.Bool

// Init: token が空なら Rollbar 送信は無効のまま
func Init(token, environment, version string) {
	if token == "" {
		rollbar.SetEnabled(false)
		return
	}
	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	rollbar.SetCodeVersion(version)
	rollbar.SetEnabled(true)
	reporting.Store(true)
}

func Infof(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Print("[WARN] " + msg)
	if reporting.Load() {
		rollbar.Warning(msg)
	}
}

func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Print("[ERROR] " + msg)
	if reporting.Load() {
		rollbar.Error(msg)
	}
}

// Close: 送信待ちのイベントを flush する
func Close() {
	if reporting.Load() {
		rollbar.Wait()
	}
}
