package game

// Snapshot is the flat state document returned by the STATE query. Field
// order matters: it is the wire order of the serialized document.
type Snapshot struct {
	Sun         int  `json:"sun"`
	Wave        int  `json:"wave"`
	TotalWaves  int  `json:"total_waves"`
	Scene       int  `json:"scene"`
	GameClock   int  `json:"game_clock"`
	InGame      bool `json:"in_game"`
	ZombieCount int  `json:"zombie_count"`
	PlantCount  int  `json:"plant_count"`
}

// TakeSnapshot reads the whole state document in one pass. InGame follows
// the UI state alone; the board-derived fields keep their zero values
// whenever the board does not resolve, so the snapshot is well-formed even
// mid-transition (UI already in-game, board not yet allocated).
func (a *Accessor) TakeSnapshot() Snapshot {
	var s Snapshot
	s.InGame = a.InGame()
	if _, ok := a.Board(); !ok {
		return s
	}
	s.Sun = a.Sun()
	s.Wave = a.Wave()
	s.TotalWaves = a.TotalWaves()
	s.Scene = a.Scene()
	s.GameClock = a.GameClock()
	s.ZombieCount = a.ZombieCount()
	s.PlantCount = a.PlantCount()
	return s
}
