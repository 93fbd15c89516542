package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/shopspring/decimal"
)

type printer struct {
	format string
	w      io.Writer
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) reconcile(res *models.ReconcileResult) error {
	if p.format == "json" {
		return p.json(res)
	}
	fmt.Fprintf(p.w, "run %s: updated %d, failed %d\n", res.RunID, res.Updated, len(res.Failures))
	if len(res.Success) > 0 {
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TRACKING\tCUSTOMER\tWEIGHT")
		for _, r := range res.Success {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.TrackingNumber, r.CustomerName, r.WeightKg.StringFixed(2))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return p.failureRows(res.Failures)
}

func (p *printer) retry(res *models.RetryResult) error {
	if p.format == "json" {
		return p.json(res)
	}
	fmt.Fprintf(p.w, "run %s: success %d, failure %d\n", res.RunID, res.Success, res.Failure)
	for _, tn := range res.SuccessTrackingNumbers {
		fmt.Fprintf(p.w, "  ok %s\n", tn)
	}
	return p.failureRows(res.Failures)
}

func (p *printer) failureRows(rows []models.FailureRow) error {
	if len(rows) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACKING\tWEIGHT\tKIND\tERROR")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.TrackingNumber, weightText(r.WeightKg), r.Kind, r.Error)
	}
	return tw.Flush()
}

func (p *printer) failures(list []*models.FailureEntry) error {
	if p.format == "json" {
		return p.json(map[string]any{"failures": list})
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(p.w, "failure queue is empty")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACKING\tWEIGHT\tRETRIES\tUPDATED\tLAST ERROR")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.TrackingNumber, weightText(e.WeightKg), e.RetryCount, e.UpdatedAt.Format("2006-01-02 15:04"), e.LastError)
	}
	return tw.Flush()
}

func (p *printer) done(action, target string) error {
	if p.format == "json" {
		return p.json(map[string]string{"status": action, "trackingNumber": target})
	}
	if target == "" {
		_, err := fmt.Fprintln(p.w, action)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", action, target)
	return err
}

func weightText(w decimal.NullDecimal) string {
	if !w.Valid {
		return "-"
	}
	return w.Decimal.StringFixed(2)
}
