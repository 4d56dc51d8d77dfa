package ai

// DefaultCategories is the category list offered to classifiers when none is configured.
var DefaultCategories = []string{
	"AI & Technology",
	"Writing & Creativity",
	"Business & Strategy",
	"Personal Development",
	"Research & Academia",
	UncategorizedCategory,
}

// UncategorizedCategory is assigned when no other category fits.
const UncategorizedCategory = "Uncategorized"
