package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/node"
)

// HistoryResponse is the reply to GET /history
type HistoryResponse struct {
	Items []sortcell.CycleRecord `json:"items"`
}

func (o *Orchestrator) text(w http.ResponseWriter, r *http.Request, command, result string) {
	o.metrics.Commands.WithLabelValues(command, result).Inc()
	render.PlainText(w, r, result)
}

func (o *Orchestrator) writeJSON(w http.ResponseWriter, r *http.Request, command string, v any) {
	o.metrics.Commands.WithLabelValues(command, string(node.ResultOK)).Inc()
	render.JSON(w, r, v)
}

func (o *Orchestrator) notFound(w http.ResponseWriter, r *http.Request, command string) {
	o.metrics.Commands.WithLabelValues(command, string(node.ResultFail)).Inc()
	render.Status(r, http.StatusNotFound)
	render.PlainText(w, r, "not found")
}

var coordinatorCommands = []*node.Command[*Orchestrator]{
	{
		Method:      http.MethodGet,
		Pattern:     "/start",
		Description: "Start the continuous sort loop.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			err := o.Start(context.WithoutCancel(r.Context()))
			result := string(node.ResultFor(err))
			if errors.Is(err, sortcell.ErrStopRequested) {
				result = string(sortcell.CycleStopped)
			}
			if err != nil {
				o.logger.Warn("refused to start", "error", err)
			}
			o.text(w, r, "start", result)
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/stop",
		Params:      "stop",
		Description: "Set (1, the default) or clear (0) the stop flag.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			var stopped bool
			switch v := strings.TrimSpace(r.FormValue("stop")); v {
			case "", "1":
				stopped = true
			case "0":
				stopped = false
			default:
				o.logger.Warn("invalid stop level", "stop", v)
				render.Status(r, http.StatusBadRequest)
				o.text(w, r, "stop", string(node.ResultFail))
				return
			}
			o.SetStop(r.Context(), stopped)
			o.text(w, r, "stop", string(node.ResultOK))
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/status",
		Description: "Report state, position and node health.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			o.writeJSON(w, r, "status", o.Status(r.Context()))
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/history",
		Description: "List recent cycles.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			o.writeJSON(w, r, "history", HistoryResponse{Items: o.history.List()})
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/history/{id}",
		Description: "Show one cycle.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			rec, ok := o.history.Get(chi.URLParam(r, "id"))
			if !ok {
				o.notFound(w, r, "cycle")
				return
			}
			o.writeJSON(w, r, "cycle", rec)
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/logs/{id}",
		Description: "Show one cycle's event log as text.",
		Run: func(o *Orchestrator, w http.ResponseWriter, r *http.Request) {
			rec, ok := o.history.Get(chi.URLParam(r, "id"))
			if !ok {
				o.notFound(w, r, "logs")
				return
			}
			o.metrics.Commands.WithLabelValues("logs", string(node.ResultOK)).Inc()
			render.PlainText(w, r, FormatLog(rec))
		},
	},
}

// FormatLog renders a cycle's events one per line
func FormatLog(rec sortcell.CycleRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycle %s material=%s result=%s\n", rec.ID, rec.Material, rec.Result)
	for _, e := range rec.Events {
		fmt.Fprintf(&sb, "%s %s\n", e.Time.Format("15:04:05.000"), e.Message)
	}
	return sb.String()
}

// Router serves the coordinator commands and /metrics
func (o *Orchestrator) Router() http.Handler {
	r := node.NewRouter(o.logger, o.metrics)
	node.Mount(r, o, coordinatorCommands)
	return r
}
