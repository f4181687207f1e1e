package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"
)

// streamWithIdleTimeout copies src to w, flushing after every chunk so a
// `follow` client sees output as it arrives, but gives up as soon as src
// goes idle for longer than idle (spec.md §5: "a log stream that sees no
// new bytes for the idle window closes rather than hanging open
// forever").
func streamWithIdleTimeout(ctx context.Context, w http.ResponseWriter, src io.Reader, idle time.Duration) error {
	flusher, _ := w.(http.Flusher)

	type chunk struct {
		n   int
		err error
	}
	buf := make([]byte, 32*1024)
	reads := make(chan chunk, 1)

	read := func() {
		n, err := src.Read(buf)
		reads <- chunk{n: n, err: err}
	}
	go read()

	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case c := <-reads:
			if c.n > 0 {
				if _, werr := w.Write(buf[:c.n]); werr != nil {
					return werr
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if c.err != nil {
				if c.err == io.EOF {
					return nil
				}
				return c.err
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
			go read()
		}
	}
}
