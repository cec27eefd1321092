package daemon

import "strings"

// request is one parsed client command. Exactly one concrete type is
// produced per input line; malformed lines parse into badRequest so the
// handler has a single dispatch point.
type request interface {
	isRequest()
}

type pingRequest struct{}

type getRequest struct {
	Item  string
	Field string // empty means the default field
}

type suggestRequest struct {
	Item string
}

type listRequest struct{}

type reloadRequest struct{}

// badRequest carries the error text to send back, without the "ERROR " prefix.
type badRequest struct {
	Reply string
}

func (pingRequest) isRequest()    {}
func (getRequest) isRequest()     {}
func (suggestRequest) isRequest() {}
func (listRequest) isRequest()    {}
func (reloadRequest) isRequest()  {}
func (badRequest) isRequest()     {}

// parseRequest tokenizes one protocol line. Commands are case-insensitive;
// tokens beyond what a command consumes are ignored.
func parseRequest(line string) request {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return badRequest{Reply: "empty request"}
	}

	switch cmd := strings.ToUpper(parts[0]); cmd {
	case "PING":
		return pingRequest{}
	case "GET":
		if len(parts) < 2 {
			return badRequest{Reply: "usage: GET <item> [field]"}
		}
		req := getRequest{Item: parts[1]}
		if len(parts) > 2 {
			req.Field = parts[2]
		}
		return req
	case "SUGGEST":
		if len(parts) < 2 {
			return badRequest{Reply: "usage: SUGGEST <item>"}
		}
		return suggestRequest{Item: parts[1]}
	case "LIST":
		return listRequest{}
	case "RELOAD":
		return reloadRequest{}
	default:
		return badRequest{Reply: "unknown command: " + cmd}
	}
}
