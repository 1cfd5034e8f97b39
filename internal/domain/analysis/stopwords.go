package analysis

// Named stop-word lists. The Russian list is the common Snowball/NLTK set;
// the English list covers function words that carry no discriminative weight.
var stopWordLists = map[string][]string{ //nolint:gochecknoglobals // read-only tables
	LanguageRussian: {
		"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а", "то", "все", "она",
		"так", "его", "но", "да", "ты", "к", "у", "же", "вы", "за", "бы", "по", "только", "ее",
		"мне", "было", "вот", "от", "меня", "еще", "нет", "о", "из", "ему", "теперь", "когда",
		"даже", "ну", "вдруг", "ли", "если", "уже", "или", "ни", "быть", "был", "него", "до",
		"вас", "нибудь", "опять", "уж", "вам", "ведь", "там", "потом", "себя", "ничего", "ей",
		"может", "они", "тут", "где", "есть", "надо", "ней", "для", "мы", "тебя", "их", "чем",
		"была", "сам", "чтоб", "без", "будто", "чего", "раз", "тоже", "себе", "под", "будет",
		"ж", "тогда", "кто", "этот", "того", "потому", "этого", "какой", "совсем", "ним",
		"здесь", "этом", "один", "почти", "мой", "тем", "чтобы", "нее", "сейчас", "были",
		"куда", "зачем", "всех", "никогда", "можно", "при", "наконец", "два", "об", "другой",
		"хоть", "после", "над", "больше", "тот", "через", "эти", "нас", "про", "всего", "них",
		"какая", "много", "разве", "три", "эту", "моя", "впрочем", "хорошо", "свою", "этой",
		"перед", "иногда", "лучше", "чуть", "том", "нельзя", "такой", "им", "более", "всегда",
		"конечно", "всю", "между",
	},
	LanguageEnglish: {
		"a", "an", "the", "and", "or", "but",
		"to", "in", "of", "on", "for", "with", "as", "at", "by", "from",
		"is", "are", "was", "were", "be", "been", "being",
		"this", "that", "these", "those", "it", "its", "itself",
		"i", "me", "my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
		"they", "them", "their",
		"do", "does", "did", "have", "has", "had",
		"not", "no", "nor", "only", "very", "too",
		"can", "could", "should", "would", "may", "might", "must", "will",
		"if", "then", "else", "than", "so", "because", "while", "when", "where",
		"about", "above", "below", "under", "over", "into", "out", "up", "down",
	},
}

// StopWords returns a copy of the named list, or nil for an unknown name.
func StopWords(language string) []string {
	ws, ok := stopWordLists[language]
	if !ok {
		return nil
	}
	out := make([]string, len(ws))
	copy(out, ws)
	return out
}
