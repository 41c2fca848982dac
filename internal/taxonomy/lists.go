package taxonomy

var defaultTerms = map[Category][]string{
	Suicide: {
		"suicide",
		"kill myself",
		"self-harm",
		"self harm",
		"how to die",
		"end my life",
		"suicide methods",
		"hanging myself",
		"painless suicide",
		"how to commit suicide",
	},
	NSFW: {
		"porn",
		"xxx",
		"nude",
		"naked",
		"nudity",
		"sex video",
		"adult content",
		"pornography",
		"erotic",
		"nsfw",
		"explicit",
		"onlyfans",
	},
	Violence: {
		"violence",
		"gore",
		"blood",
		"kill",
		"murder",
		"dead body",
		"graphic violence",
		"brutal",
		"fight video",
		"torture",
		"death",
		"how to kill",
	},
}

var defaultEducational = []string{
	// general
	"education", "educational", "research", "study", "studies", "case study",
	"information", "learn", "learning", "article", "report", "news",
	"medical", "health", "science", "history", "academic", "effects",
	"impact", "paper", "statistics", "analysis", "assessment",
	"correlation", "comparison", "theory", "evidence", "data", "findings",
	"review", "journal",

	// clinical
	"neurological", "psychological", "psychology", "therapy", "counseling",
	"prevention", "awareness", "treatment", "mental health", "strategies",
	"recovery", "behavior", "cognitive", "development", "intervention",
	"support", "hotline", "crisis line",

	// institutional
	"school", "university", "college", "classroom", "teacher", "student",
	"professor", "counselor", "program", "curriculum", "lecture",
	"textbook", "encyclopedia", "documentary",
}

var defaultStrong = []string{
	"research", "study", "paper", "academic", "psychology", "education",
	"prevention", "awareness", "effects", "impact",
}
