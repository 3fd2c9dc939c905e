package engine

// GameOrder is the fixed 20-slot tournament draft: 6 bans, 6 picks, 4 bans, 4 picks.
var GameOrder = []TurnStep{
	// Ban Phase 1
	{Side: SideBlue, Action: ActionBan},
	{Side: SideRed, Action: ActionBan},
	{Side: SideBlue, Action: ActionBan},
	{Side: SideRed, Action: ActionBan},
	{Side: SideBlue, Action: ActionBan},
	{Side: SideRed, Action: ActionBan},
	// Pick Phase 1
	{Side: SideBlue, Action: ActionPick},
	{Side: SideRed, Action: ActionPick},
	{Side: SideRed, Action: ActionPick},
	{Side: SideBlue, Action: ActionPick},
	{Side: SideBlue, Action: ActionPick},
	{Side: SideRed, Action: ActionPick},
	// Ban Phase 2
	{Side: SideRed, Action: ActionBan},
	{Side: SideBlue, Action: ActionBan},
	{Side: SideRed, Action: ActionBan},
	{Side: SideBlue, Action: ActionBan},
	// Pick Phase 2
	{Side: SideRed, Action: ActionPick},
	{Side: SideBlue, Action: ActionPick},
	{Side: SideBlue, Action: ActionPick},
	{Side: SideRed, Action: ActionPick},
}
