package debug

import (
	"fmt"
	"strings"
)

// Format renders a provenance tree, one result per line:
//
//	#5 invoke app/Client.send(Ljava/lang/String;)V  [app/Svc.run()V @4]
//	└─ #9 multiple [#7 #8]
//	   ├─ #7 constant "a"
//	   └─ #8 constant "b"
func Format(info *Info) string {
	if info == nil {
		return ""
	}
	var buf strings.Builder
	writeLine(&buf, info)
	writeChildren(&buf, info.Children, "")
	return buf.String()
}

func writeChildren(buf *strings.Builder, children []*Info, indent string) {
	for i, c := range children {
		branch, next := "├─ ", "│  "
		if i == len(children)-1 {
			branch, next = "└─ ", "   "
		}
		buf.WriteString(indent + branch)
		writeLine(buf, c)
		writeChildren(buf, c.Children, indent+next)
	}
}

func writeLine(buf *strings.Builder, info *Info) {
	buf.WriteString(info.Summary)
	if info.Site.Method != "" {
		fmt.Fprintf(buf, "  [%s @%d]", info.Site.Method, info.Site.First)
	}
	if info.Origin != "" {
		fmt.Fprintf(buf, " (by %s)", info.Origin)
	}
	if info.Cause != "" {
		fmt.Fprintf(buf, ": %s", info.Cause)
	}
	switch {
	case info.Seen:
		buf.WriteString(" (see above)")
	case info.Truncated:
		buf.WriteString(" ...")
	}
	buf.WriteByte('\n')
}
