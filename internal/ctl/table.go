package ctl

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/httpserver"
)

// RenderRooms writes report as a borderless table, one row per room, sorted
// by room ID.
func RenderRooms(w io.Writer, report httpserver.RoomsReport, now time.Time) {
	ids := make([]string, 0, len(report.Rooms))
	for id := range report.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Room", "Users", "Age", "Members"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, id := range ids {
		r := report.Rooms[id]
		table.Append([]string{
			id,
			strconv.Itoa(r.UserCount),
			formatAge(now.Sub(r.CreatedAt)),
			strings.Join(r.Users, ", "),
		})
	}
	table.Render()
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}
