package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/competitor/crawler"
	"github.com/seo-optimizer/competitor/errs"
	"github.com/seo-optimizer/competitor/report"
)

// SSE event names sent by the crawl stream
const (
	EventProgress = "progress"
	EventReport   = "report"
	EventError    = "error"
)

type crawlOutcome struct {
	rep *report.Report
	err error
}

// crawlStream runs a crawl and streams a progress event per page, then a
// single report or error event.
func (h *Handler) crawlStream(c *gin.Context) {
	var req crawlRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, errs.Input("crawl", err))
		return
	}
	p, err := h.params(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	events := make(chan crawler.Event, 64)
	done := make(chan crawlOutcome, 1)
	p.Progress = func(ev crawler.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	go func() {
		rep, err := h.svc.Crawl(ctx, req.URL, p)
		done <- crawlOutcome{rep: rep, err: err}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case ev := <-events:
			h.send(c, EventProgress, ev)
		case out := <-done:
			// progress is always sent before the crawl returns
			for drained := false; !drained; {
				select {
				case ev := <-events:
					h.send(c, EventProgress, ev)
				default:
					drained = true
				}
			}
			if out.err != nil {
				if !errs.IsInput(out.err) {
					h.log.WithError(out.err).WithField("url", req.URL).Error("streamed crawl failed")
				}
				h.send(c, EventError, gin.H{"error": out.err.Error(), "input": errs.IsInput(out.err)})
				return
			}
			h.send(c, EventReport, out.rep)
			return
		case <-ctx.Done():
			h.log.WithField("url", req.URL).Debug("stream client went away")
			return
		}
	}
}

func (h *Handler) send(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}
