package cell_views

import (
	"fmt"
	"html/template"
	"strconv"

	"gridworld/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// Status is a table of each run's episode and action counts and its exploration rate.
type Status struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewStatus(
	done <-chan struct{},
	boards <-chan Board,
) (st *Status) {
	st = &Status{id: "status"}
	st.updates = channerics.Convert(done, boards, st.onUpdate)
	return
}

func (st *Status) Updates() <-chan []fastview.EleUpdate {
	return st.updates
}

func (st *Status) Parse(parent *template.Template) (string, error) {
	_, err := parent.Parse(`{{ define "` + st.id + `" }}
	<table id="` + st.id + `">
		<tr><th>Run</th><th>Board</th><th>Obstacles</th><th>Episodes</th><th>Actions</th><th>Rate</th></tr>
		{{ range $board := . }}
		<tr>
			<td>{{ $board.ID }}</td>
			<td>{{ $board.Rows }} x {{ $board.Cols }}</td>
			<td>{{ $board.Obstacles }}</td>
			<td id="{{ $board.ID }}-episodes">{{ $board.Episodes }}</td>
			<td id="{{ $board.ID }}-actions">{{ $board.Actions }}</td>
			<td id="{{ $board.ID }}-rate">{{ printf "%.6f" $board.Rate }}</td>
		</tr>
		{{ end }}
	</table>
	{{ end }}`)
	return st.id, err
}

func (st *Status) onUpdate(board Board) []fastview.EleUpdate {
	text := func(id, value string) fastview.EleUpdate {
		return fastview.EleUpdate{
			EleId: board.ID + "-" + id,
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: value}},
		}
	}
	return []fastview.EleUpdate{
		text("episodes", strconv.FormatInt(board.Episodes, 10)),
		text("actions", strconv.FormatInt(board.Actions, 10)),
		text("rate", fmt.Sprintf("%.6f", board.Rate)),
	}
}
