package categorize

// rule maps a keyword to a leaf category. Rules are evaluated in slice order
// and the first match wins, so more specific keywords must come first.
type rule struct {
	keyword  string
	category string
}

// keywordRules is the static decision table matched case-insensitively against
// a transaction's merchant name or description.
var keywordRules = []rule{
	// Food & Dining
	{"grocery", "Groceries"},
	{"supermarket", "Groceries"},
	{"restaurant", "Restaurants"},
	{"doordash", "Food Delivery"},
	{"ubereats", "Food Delivery"},
	{"grubhub", "Food Delivery"},
	{"bakery", "Restaurants"},
	{"cafe", "Restaurants"},
	{"coffee shop", "Coffee & Tea"},
	{"starbucks", "Coffee & Tea"},

	// Bills & Utilities
	{"electric", "Utilities"},
	{"water", "Utilities"},
	{"gas", "Utilities"},
	{"internet", "Internet"},
	{"cable", "Internet"},
	{"phone", "Phone"},
	{"mobile", "Phone"},
	{"insurance", "Insurance"},
	{"rent", "Housing"},
	{"mortgage", "Housing"},

	// Entertainment
	{"netflix", "Streaming Services"},
	{"hulu", "Streaming Services"},
	{"disney+", "Streaming Services"},
	{"spotify", "Music"},
	{"apple music", "Music"},
	{"movie", "Entertainment"},
	{"cinema", "Entertainment"},
	{"theatre", "Entertainment"},
	{"concert", "Entertainment"},

	// Shopping
	{"amazon", "Online Shopping"},
	{"walmart", "Shopping"},
	{"target", "Shopping"},
	{"clothing", "Clothing"},
	{"electronics", "Electronics"},

	// Transportation
	{"uber", "Rideshare"},
	{"lyft", "Rideshare"},
	{"gas station", "Gas"},
	{"fuel", "Gas"},
	{"parking", "Parking"},
	{"transit", "Public Transit"},
	{"subway", "Public Transit"},
	{"bus", "Public Transit"},
	{"train", "Public Transit"},
	{"airline", "Air Travel"},
	{"flight", "Air Travel"},

	// Health
	{"pharmacy", "Healthcare"},
	{"doctor", "Healthcare"},
	{"medical", "Healthcare"},
	{"dental", "Healthcare"},
	{"gym", "Fitness"},
	{"fitness", "Fitness"},

	// Personal
	{"salon", "Personal Care"},
	{"barber", "Personal Care"},
	{"spa", "Personal Care"},

	// Education
	{"tuition", "Education"},
	{"school", "Education"},
	{"book", "Education"},
	{"university", "Education"},
	{"college", "Education"},

	// Miscellaneous
	{"atm", "ATM/Cash"},
	{"withdrawal", "ATM/Cash"},
	{"fee", "Fees"},
	{"service fee", "Fees"},
	{"tax", "Taxes"},
	{"donation", "Charity"},
	{"gift", "Gifts"},
}

// highLevelGroups maps each leaf category to exactly one high-level group.
// Leaves missing from this table fall back to Uncategorized.
var highLevelGroups = map[string]string{
	"Groceries":     "Food & Dining",
	"Restaurants":   "Food & Dining",
	"Food Delivery": "Food & Dining",
	"Coffee & Tea":  "Food & Dining",

	"Housing":   "Housing & Utilities",
	"Utilities": "Housing & Utilities",
	"Internet":  "Housing & Utilities",
	"Phone":     "Housing & Utilities",

	"Streaming Services": "Entertainment",
	"Music":              "Entertainment",
	"Entertainment":      "Entertainment",

	"Online Shopping": "Shopping",
	"Shopping":        "Shopping",
	"Clothing":        "Shopping",
	"Electronics":     "Shopping",

	"Rideshare":      "Transportation",
	"Gas":            "Transportation",
	"Parking":        "Transportation",
	"Public Transit": "Transportation",
	"Air Travel":     "Transportation",

	"Healthcare":    "Health & Wellness",
	"Fitness":       "Health & Wellness",
	"Personal Care": "Health & Wellness",

	"Education": "Education",

	"ATM/Cash": "Financial",
	"Fees":     "Financial",
	"Taxes":    "Financial",

	"Charity": "Miscellaneous",
	"Gifts":   "Miscellaneous",
}
