package layout

// Default returns the descriptor for the supported target build
// (PlantsVsZombies 1.0.0.1051). The values come from the community offset
// tables for that binary.
func Default() *Layout {
	return &Layout{
		Target:      "pvz",
		Version:     "1.0.0.1051",
		PointerSize: 4,
		Base:        0x6A9EC0,
		Offsets: Offsets{
			MainObject:  0x768,
			GameUI:      0x7FC,
			SeedChooser: 0x774,
			TickMs:      0x454,

			Sun:       0x5560,
			Wave:      0x557C,
			TotalWave: 0x5564,
			GameClock: 0x5568,
			Scene:     0x554C,

			PlantArray:    0xAC,
			PlantCountMax: 0xB0,
			PlantSize:     0x14C,
			PlantRow:      0x1C,
			PlantCol:      0x28,
			PlantDead:     0x141,

			ZombieArray:    0x90,
			ZombieCountMax: 0x94,
			ZombieSize:     0x15C,
			ZombieDead:     0xEC,

			CardBase:   0xA4,
			CardStride: 60,
		},
		Routines: map[string]Routine{
			// Board::AddPlant(col, type, -1) with the board in ecx and the
			// row in eax.
			"put_plant": {
				Addr:  0x40D120,
				Regs:  map[string]string{"ecx": "board", "eax": "arg0"},
				Stack: []string{"-1", "arg2", "arg1"},
			},
			// Plant::Die(plant)
			"shovel": {
				Addr:  0x411060,
				Stack: []string{"record"},
			},
			// SeedChooserScreen::ClickSeed(cardSlot)
			"choose_card": {
				Addr:  0x486030,
				Stack: []string{"slot"},
			},
			// SeedChooserScreen::OnStartButton; takes its context in
			// registers only.
			"rock": {
				Addr: 0x486D20,
				Regs: map[string]string{"ebx": "chooser", "esi": "base", "edi": "1", "ebp": "1"},
			},
			// LawnApp::MakeNewBoard(app)
			"make_new_board": {
				Addr: 0x44F5F0,
				Regs: map[string]string{"ecx": "base"},
			},
			// LawnApp::PreNewGame(mode, true) with the app in esi.
			"enter_game": {
				Addr:  0x44F560,
				Regs:  map[string]string{"esi": "base"},
				Stack: []string{"1", "arg0"},
			},
			// LawnApp::DoBackToMain(app)
			"back_to_main": {
				Addr: 0x44FEB0,
				Regs: map[string]string{"eax": "base"},
			},
		},
		Hook: Hook{
			Strategy: StrategyPatch,
			Loop:     0x452650,
			// Alternate interception point: the LawnApp vtable slot for the
			// per-frame update, for builds where patching the loop entry is
			// not viable.
			Slot: 0x667C8C,
			// Scratch bytes in the image's section padding.
			Trampoline: 0x6ABFE0,
			RetTrap:    0x6ABFF0,
		},
	}
}
