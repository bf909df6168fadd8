// Package seed owns the default directory tables written to the record store
// the first time an empty players/leaders tab is read. The data is versioned
// here rather than buried in a request handler so the adapter can be seeded
// from one place.
package seed

// Version bumps when the default tables change shape or content.
const Version = 2

var PlayerHeader = []string{"ID", "Name"}

var PlayerRows = [][]string{
	{"1", "Paul"},
	{"2", "Jessica"},
	{"3", "Leto"},
	{"4", "Chani"},
	{"5", "Stilgar"},
	{"6", "Duncan"},
	{"7", "Zenn"},
}

var LeaderHeader = []string{"ID", "Name", "House", "Game", "Passive", "Signet"}

var LeaderRows = [][]string{
	{"feyd", "Feyd-Rautha Harkonnen", "Harkonnen", "Uprising", "Brutality: Gather spice or solari when you send an agent to a combat space.", "Devious Strength: Deploy troops and gain strength."},
	{"shaddam", "Emperor Shaddam Corrino IV", "Corrino", "Uprising", "Sardaukar Contracts: You may acquire Sardaukar Contract cards.", "Spend Solari to gain influence or troops."},
	{"gurney", "Gurney Halleck", "Atreides", "Uprising", "Veteran: Start with 1 extra Persuasion.", "Warmaster: Gain 1 troop."},
	{"lady-jessica-uprising", "Lady Jessica", "Atreides", "Uprising", "Choices: Choose between water or influence path.", "Gain Water or Influence based on choice."},
	{"muaddib", "Muad'Dib", "Fremen", "Uprising", "Unpredictable Fall: Gain Intrigue if you have sandworms in conflict.", "Lead the Way: Draw 1 card."},
	{"staban", "Staban Tuek", "Smuggler", "Uprising", "Smuggler: Gain spice when opponents spy on your spot.", "Spy Network: Place spies or cash them in for Solari/Intrigue."},
	{"irulan", "Princess Irulan", "Corrino", "Uprising", "Imperial Birthright: Gain Intrigue at 2 Emperor Influence.", "Chronicler: Acquire cheap card or trash hand for Spice."},
	{"margot", "Lady Margot Fenring", "Bene Gesserit", "Uprising", "Hidden Plans: Gain spice and troop manipulation.", "Recall Spy: Retrieve spy to gain troops."},
	{"amber", "Lady Amber Metulli", "Minor House", "Uprising", "Tactical Withdrawal: Withdraw troops to garrison.", "Desert Tactics: Withdraw troop to gain Solari."},
	{"esmar", "Esmar Tuek", "Smuggler", "Bloodlines", "Tuek's Sietch: Access special board space to gather accumulated spice.", "Bazaar: Trade spice/solari."},
	{"piter", "Piter De Vries", "Harkonnen", "Bloodlines", "Twisted Mentat: Has personal Intrigue Deck.", "Schemes: Pay water to draw cards."},
	{"yrkoon", "Steersman Y'rkoon", "Spacing Guild", "Bloodlines", "Navigator: Uses special Navigation deck.", "Fold Space: Travel to any non-faction space."},
	{"duncan-bloodlines", "Duncan Idaho", "Atreides", "Bloodlines", "Swordmaster of Ginaz: Combat bonuses.", "Loyalty: Gain influence or troops."},
	{"chani-bloodlines", "Chani", "Fremen", "Bloodlines", "Fedaykin: Sandworm synergy.", "Sietch Life: Gain water or troops."},
	{"kota", "Kota Odax of Ix", "Ixian", "Bloodlines", "Technocrat: Synergies with Tech tiles.", "Surveillance: Place spies."},
	{"liet", "Liet Kynes", "Fremen", "Bloodlines", "Planetologist: Sandworm interactions.", "Ecology: Gain Solari or Spice."},
	{"mohiam", "Gaius Helen Mohiam", "Bene Gesserit", "Bloodlines", "Truthsayer: Spy synergy.", "Voice: Manipulate opponent agents."},
	{"hasimir", "Count Hasimir Fenring", "Corrino", "Bloodlines", "Assassin: Trashing cards benefits.", "Deep Cover: Trash card to gain Solari/Spy."},
}

// ScoreHeader and LogHeader are the column layouts written by finalize.
var ScoreHeader = []string{"Game ID", "Game Date", "Player ID", "Leader ID", "Victory Points"}

var LogHeader = []string{"Game ID", "Game Date", "Round", "Player ID", "Action", "Timestamp"}
