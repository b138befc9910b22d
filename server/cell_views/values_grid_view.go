package cell_views

import (
	"fmt"
	"html/template"

	"gridworld/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid draws each run's board as an svg grid, showing every cell's glyph
// and maximum action value.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValuesGrid(
	done <-chan struct{},
	boards <-chan Board,
) (vg *ValuesGrid) {
	vg = &ValuesGrid{id: "valuesgrid"}
	vg.updates = channerics.Convert(done, boards, vg.onUpdate)
	return
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

// Parse defines the view's template, which expects the initial []Board.
func (vg *ValuesGrid) Parse(parent *template.Template) (string, error) {
	_, err := parent.Parse(`{{ define "` + vg.id + `" }}
	<div id="` + vg.id + `">
		{{ $cell_width := 60 }}
		{{ $cell_height := $cell_width }}
		{{ $half_width := div $cell_width 2 }}
		{{ $half_height := div $cell_height 2 }}
		{{ range $board := . }}
		<h3>Run {{ $board.ID }}: {{ $board.Rows }} x {{ $board.Cols }}</h3>
		<svg width="{{ add (mult $cell_width $board.Cols) 1 }}px"
			height="{{ add (mult $cell_height $board.Rows) 1 }}px"
			style="shape-rendering: crispEdges;">
			{{ range $row := $board.Cells }}
				{{ range $cell := $row }}
				<g>
					<rect id="{{ $board.ID }}-{{ $cell.Row }}-{{ $cell.Col }}-rect"
						x="{{ mult $cell.Col $cell_width }}"
						y="{{ mult $cell.Row $cell_height }}"
						width="{{ $cell_width }}"
						height="{{ $cell_height }}"
						fill="{{ $cell.Fill }}"
						stroke="black"
						stroke-width="1"/>
					<text id="{{ $board.ID }}-{{ $cell.Row }}-{{ $cell.Col }}-value"
						x="{{ add (mult $cell.Col $cell_width) $half_width }}"
						y="{{ add (mult $cell.Row $cell_height) (sub $half_height 10) }}"
						font-size="10"
						dominant-baseline="text-top" text-anchor="middle"
						>{{ printf "%.2f" $cell.Max }}</text>
					<text id="{{ $board.ID }}-{{ $cell.Row }}-{{ $cell.Col }}-glyph"
						x="{{ add (mult $cell.Col $cell_width) $half_width }}"
						y="{{ add (mult $cell.Row $cell_height) (add $half_height 12) }}"
						stroke="blue"
						dominant-baseline="central" text-anchor="middle"
						>{{ $cell.Glyph }}</text>
				</g>
				{{ end }}
			{{ end }}
		</svg>
		{{ end }}
	</div>
	{{ end }}`)
	return vg.id, err
}

// onUpdate returns the set of view updates needed for the view to reflect the board.
func (vg *ValuesGrid) onUpdate(board Board) (ops []fastview.EleUpdate) {
	for _, row := range board.Cells {
		for _, cell := range row {
			prefix := fmt.Sprintf("%s-%d-%d", board.ID, cell.Row, cell.Col)
			ops = append(ops,
				fastview.EleUpdate{
					EleId: prefix + "-value",
					Ops: []fastview.Op{
						{Key: fastview.TextContent, Value: fmt.Sprintf("%.2f", cell.Max)},
					},
				},
				fastview.EleUpdate{
					EleId: prefix + "-glyph",
					Ops: []fastview.Op{
						{Key: fastview.TextContent, Value: cell.Glyph},
					},
				},
				fastview.EleUpdate{
					EleId: prefix + "-rect",
					Ops: []fastview.Op{
						{Key: "fill", Value: cell.Fill},
					},
				})
		}
	}
	return
}
