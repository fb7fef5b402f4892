package hyprland

import (
	"strings"

	"github.com/1broseidon/alttab/internal/protocol"
)

// rawEvent is one socket2 line, `NAME>>DATA`.
type rawEvent struct {
	Name string
	Data string
}

func parseLine(line string) (rawEvent, bool) {
	name, data, ok := strings.Cut(strings.TrimRight(line, "\r\n"), ">>")
	if !ok || name == "" {
		return rawEvent{}, false
	}
	return rawEvent{Name: name, Data: data}, true
}

// geometryEvents change client positions without saying where they went.
var geometryEvents = map[string]bool{
	"movewindowv2":       true,
	"changefloatingmode": true,
	"fullscreen":         true,
	"moveworkspacev2":    true,
	"monitorremoved":     true,
}

// translate maps a socket2 event to toplevel events. refresh is set when the
// client list must be re-read to learn new geometry.
func translate(ev rawEvent) (out []protocol.Event, refresh bool) {
	switch ev.Name {
	case "openwindow":
		// ADDRESS,WORKSPACENAME,CLASS,TITLE
		parts := strings.SplitN(ev.Data, ",", 4)
		if len(parts) < 4 {
			return nil, false
		}
		id, err := parseAddress(parts[0])
		if err != nil {
			return nil, false
		}
		return []protocol.Event{
			{Kind: protocol.ToplevelNew, Window: id, AppID: parts[2], Title: parts[3]},
			{Kind: protocol.ToplevelDone},
		}, true

	case "closewindow":
		id, err := parseAddress(ev.Data)
		if err != nil {
			return nil, false
		}
		return []protocol.Event{
			{Kind: protocol.ToplevelClosed, Window: id},
			{Kind: protocol.ToplevelDone},
		}, false

	case "activewindowv2":
		// Empty when focus moves to no window.
		id, err := parseAddress(ev.Data)
		if err != nil {
			return nil, false
		}
		return []protocol.Event{{Kind: protocol.ToplevelActivated, Window: id}}, false

	case "windowtitlev2":
		// ADDRESS,TITLE
		addr, title, ok := strings.Cut(ev.Data, ",")
		if !ok {
			return nil, false
		}
		id, err := parseAddress(addr)
		if err != nil {
			return nil, false
		}
		return []protocol.Event{{Kind: protocol.ToplevelTitle, Window: id, Title: title}}, false
	}

	return nil, geometryEvents[ev.Name]
}
