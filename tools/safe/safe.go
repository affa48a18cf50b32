package safe

import (
	"IMProject/logger"
	"IMProject/tools/errs"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
// recover 到的值包装成带堆栈的 CodeError，日志里能看到 panic 点。
func SafeGo(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %s panic recovered: %+v", name, errs.ErrPanic(r))
			}
		}()
		f()
	}()
}
