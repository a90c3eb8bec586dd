package handler

// Action is one of the operations selected by the "action" query parameter.
type Action string

const (
	ActionAuthURL     Action = "auth-url"
	ActionCallback    Action = "callback"
	ActionStatus      Action = "status"
	ActionListFolders Action = "list-folders"
	ActionListFiles   Action = "list-files"
	ActionUpload      Action = "upload"
	ActionGetFile     Action = "get-file"
	ActionDisconnect  Action = "disconnect"
)

// ParseAction maps the raw query value onto a known Action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionAuthURL, ActionCallback, ActionStatus, ActionListFolders,
		ActionListFiles, ActionUpload, ActionGetFile, ActionDisconnect:
		return a, true
	}
	return "", false
}
