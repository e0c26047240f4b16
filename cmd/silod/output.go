package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printObjectTable(obj *model.Object) {
	label := func(s string) string { return ui.RenderMuted(s) }
	fmt.Printf("%s %s\n", label("Silo:      "), ui.RenderAccent(obj.Silo))
	fmt.Printf("%s %s\n", label("Structure: "), obj.Structure)
	fmt.Printf("%s %s\n", label("Instance:  "), obj.Instance)
	fmt.Printf("%s %s\n", label("Type:      "), obj.Type)
	fmt.Printf("%s %s\n", label("Key:       "), obj.Key)
	if obj.Derived {
		fmt.Printf("%s %s\n", label("Derived:   "),
			ui.Derived.Render(fmt.Sprintf("from %s/%s", obj.SourceStructure, obj.SourceInstance)))
	}
	if !obj.UpdatedAt.IsZero() {
		fmt.Printf("%s %s\n", label("Updated At:"), obj.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("%s %s\n", label("Value:     "), string(obj.Value))
}

func printObjectListTable(objects []*model.Object) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tDERIVED\tUPDATED\tVALUE")
	for _, o := range objects {
		derived := ""
		if o.Derived {
			derived = o.SourceStructure + "/" + o.SourceInstance
		}
		value := string(o.Value)
		if len(value) > 60 {
			value = value[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			o.Key,
			derived,
			o.UpdatedAt.Format("2006-01-02 15:04:05"),
			value,
		)
	}
	w.Flush()
	fmt.Println(ui.RenderMuted(fmt.Sprintf("\n%d objects", len(objects))))
}

func printEventTable(events []*model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTIME\tTYPE\tSESSION\tSILO\tUSER")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Key,
			e.Time.Format("2006-01-02 15:04:05"),
			e.EventType,
			e.SessionKey,
			e.Silo,
			e.UserID,
		)
	}
	w.Flush()
	fmt.Println(ui.RenderMuted(fmt.Sprintf("\n%d events", len(events))))
}

func printSessionTable(sess []*model.Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSILO\tUSER\tSTART\tEND\tDEVICE")
	for _, s := range sess {
		end := "(open)"
		if s.EndTime != nil {
			end = s.EndTime.Format("2006-01-02 15:04:05")
		}
		device := ""
		if s.DeviceInfo != nil {
			device = s.DeviceInfo.BrowserName
			if s.DeviceInfo.IsMobile {
				device += " (mobile)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Key,
			s.Silo,
			s.UserName,
			s.StartTime.Format("2006-01-02 15:04:05"),
			end,
			device,
		)
	}
	w.Flush()
	open := 0
	for _, s := range sess {
		if s.EndTime == nil {
			open++
		}
	}
	if open > 0 {
		fmt.Printf("\n%s %s\n",
			ui.RenderMuted(fmt.Sprintf("%d sessions,", len(sess))),
			ui.Open.Render(fmt.Sprintf("%d open", open)))
	} else {
		fmt.Println(ui.RenderMuted(fmt.Sprintf("\n%d sessions", len(sess))))
	}
}
