package trace

import (
	"fmt"
	"strings"

	"github.com/Manu343726/lltrace/cmd/common"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse <trace>",
	Short: "Browse a trace interactively",
	Long: `Opens a terminal browser of the instructions of a trace. Each instruction
expands into its operand records.

Keys:
  enter    expand or collapse the selected instruction
  q, esc   quit`,
	Args: cobra.ExactArgs(1),
	Run:  runBrowse,
}

func init() {
	TraceCmd.AddCommand(browseCmd)
}

// An entry or instruction header with the operand records that follow it
type item struct {
	Entry    *trace.Entry
	Header   *trace.Header
	Operands []*trace.Operand
}

// Groups records by the entry or header they belong to. Operands found before
// the first entry or header are grouped in an item without either
func groupRecords(records []trace.Record) []*item {
	items := []*item{}
	var current *item

	for _, r := range records {
		switch r.Kind {
		case trace.RecordKind_Entry:
			current = &item{Entry: r.Entry}
			items = append(items, current)
		case trace.RecordKind_Header:
			current = &item{Header: r.Header}
			items = append(items, current)
		case trace.RecordKind_Operand:
			if current == nil {
				current = &item{}
				items = append(items, current)
			}
			current.Operands = append(current.Operands, r.Operand)
		}
	}

	return items
}

func (i *item) String() string {
	switch {
	case i.Entry != nil:
		return fmt.Sprintf("call %v (%d params)", i.Entry.Function, i.Entry.Params)
	case i.Header != nil:
		h := i.Header
		return fmt.Sprintf("#%d %v %v:%d %v/%v", h.Count, opcodeName(h.Opcode), h.Function, h.Line, h.Block, h.Instruction)
	}
	return "operands without instruction"
}

func describeOperand(o *trace.Operand) string {
	name := o.ParamField()
	if o.IsReg {
		name += " %" + o.Label
	}

	s := fmt.Sprintf("%v = %v (i%d)", name, o.Value, o.Size)
	if o.IsPhi {
		s += " from " + o.PrevBlock
	}
	return s
}

func buildTree(path, labelMap string, items []*item) *tview.TreeNode {
	root := tview.NewTreeNode(path).SetColor(tcell.ColorRed)

	if labelMap != "" {
		labels := tview.NewTreeNode("label map").SetColor(tcell.ColorGreen).SetExpanded(false)
		for _, line := range strings.Split(strings.TrimSpace(labelMap), "\n") {
			labels.AddChild(tview.NewTreeNode(line))
		}
		root.AddChild(labels)
	}

	for _, i := range items {
		node := tview.NewTreeNode(i.String()).SetReference(i).SetExpanded(false)
		if i.Entry != nil {
			node.SetColor(tcell.ColorFuchsia)
		} else {
			node.SetColor(tcell.ColorYellow)
		}

		for _, o := range i.Operands {
			node.AddChild(tview.NewTreeNode(describeOperand(o)).SetSelectable(false))
		}

		root.AddChild(node)
	}

	return root
}

func runBrowse(cmd *cobra.Command, args []string) {
	records := []trace.Record{}
	labelMap := readTrace(args[0], func(r trace.Record) {
		records = append(records, r)
	})

	items := groupRecords(records)
	root := buildTree(args[0], labelMap, items)

	details := tview.NewTextView().SetDynamicColors(true)
	details.SetBorder(true).SetTitle("record")

	tree := tview.NewTreeView().SetRoot(root).SetCurrentNode(root)
	tree.SetBorder(true).SetTitle(fmt.Sprintf("%v (%d records)", args[0], len(records)))

	tree.SetSelectedFunc(func(node *tview.TreeNode) {
		node.SetExpanded(!node.IsExpanded())
	})
	tree.SetChangedFunc(func(node *tview.TreeNode) {
		i, ok := node.GetReference().(*item)
		if !ok {
			details.SetText("")
			return
		}

		lines := []string{}
		switch {
		case i.Entry != nil:
			lines = append(lines, trace.Record{Kind: trace.RecordKind_Entry, Entry: i.Entry}.String())
		case i.Header != nil:
			lines = append(lines, trace.Record{Kind: trace.RecordKind_Header, Header: i.Header}.String())
		}
		for _, o := range i.Operands {
			lines = append(lines, trace.Record{Kind: trace.RecordKind_Operand, Operand: o}.String())
		}
		details.SetText(tview.Escape(strings.Join(lines, "\n")))
	})

	layout := tview.NewFlex().
		AddItem(tree, 0, 2, true).
		AddItem(details, 0, 1, false)

	app := tview.NewApplication()
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(layout, true).EnableMouse(true).Run(); err != nil {
		common.Fail(4, "%v", err)
	}
}
