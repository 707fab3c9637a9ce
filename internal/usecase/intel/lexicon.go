package intel

import (
	"regexp"

	"channel-insights/internal/domain"
)

// Словари загружаются один раз при старте и не изменяются.

var positiveWords = []string{
	"great", "awesome", "excellent", "good", "love", "amazing", "wonderful",
	"fantastic", "perfect", "happy", "glad", "thank", "appreciate", "agree",
	"nice", "success", "resolved", "congrat", "brilliant", "helpful",
	"excited", "impressive", "well done", "kudos",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "hate", "problem", "issue", "bug", "broken",
	"fail", "error", "wrong", "concern", "worried", "stuck", "blocked",
	"delay", "risk", "urgent", "down", "crash", "angry", "annoy",
	"frustrat", "disappoint", "confus", "unhappy",
}

var intensifiers = map[string]struct{}{
	"very": {}, "extremely": {}, "really": {}, "super": {}, "so": {},
	"totally": {}, "absolutely": {}, "incredibly": {}, "highly": {}, "completely": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "nothing": {}, "nobody": {},
	"neither": {}, "nor": {}, "cannot": {}, "can't": {}, "don't": {}, "doesn't": {},
	"didn't": {}, "won't": {}, "isn't": {}, "wasn't": {}, "aren't": {}, "weren't": {},
	"shouldn't": {}, "wouldn't": {}, "couldn't": {}, "haven't": {}, "hasn't": {}, "hadn't": {},
}

type topicPattern struct {
	re    *regexp.Regexp
	label string
}

var topicPatterns = []topicPattern{
	{regexp.MustCompile(`(?i)\b(bugs?|errors?|crash\w*|broken|fix\w*|issues?)\b`), "Bugs & Issues"},
	{regexp.MustCompile(`(?i)\b(deploy\w*|release\w*|ship\w*|launch\w*|rollout)\b`), "Releases"},
	{regexp.MustCompile(`(?i)\b(meeting|call|sync|standup|agenda)\b`), "Meetings"},
	{regexp.MustCompile(`(?i)\b(design|ui|ux|mockups?|figma)\b`), "Design"},
	{regexp.MustCompile(`(?i)\b(customers?|clients?|users?|feedback)\b`), "Customers"},
	{regexp.MustCompile(`(?i)\b(deadlines?|due|eod|schedule|timeline)\b`), "Deadlines"},
	{regexp.MustCompile(`(?i)\b(budget|costs?|invoices?|pricing|revenue)\b`), "Finance"},
	{regexp.MustCompile(`(?i)\b(hir(e|ing)|interviews?|candidates?|onboarding)\b`), "Hiring"},
	{regexp.MustCompile(`(?i)\b(servers?|database|api|infra\w*|outage|down)\b`), "Infrastructure"},
	{regexp.MustCompile(`(?i)\b(tests?|testing|qa|reviews?|pr)\b`), "Quality"},
}

type actionPattern struct {
	re  *regexp.Regexp
	typ domain.ActionType
}

// Порядок значим: побеждает первый совпавший шаблон.
var actionPatterns = []actionPattern{
	{regexp.MustCompile(`(?i)\bi(?:'ll| will)\s+(.+?)(?:\.|$)`), domain.ActionCommitment},
	{regexp.MustCompile(`(?i)\blet me\s+(.+?)(?:\.|$)`), domain.ActionCommitment},
	{regexp.MustCompile(`(?i)\bwe need to\s+(.+?)(?:\.|$)`), domain.ActionTask},
	{regexp.MustCompile(`(?i)\bwe should\s+(.+?)(?:\.|$)`), domain.ActionProposal},
	{regexp.MustCompile(`(?i)\bplease\s+(.+?)(?:\.|$)`), domain.ActionRequest},
	{regexp.MustCompile(`(?i)\btodo:?\s+(.+?)(?:\.|$)`), domain.ActionTask},
	{regexp.MustCompile(`(?i)\baction item:?\s+(.+?)(?:\.|$)`), domain.ActionTask},
	{regexp.MustCompile(`(?i)\bcan you\s+(.+?)(?:\?|$)`), domain.ActionRequest},
	{regexp.MustCompile(`(?i)\bfollow(?:ing)?[ -]up\s+(?:on\s+)?(.+?)(?:\.|$)`), domain.ActionFollowUp},
	{regexp.MustCompile(`(?i)\bmake sure\s+(.+?)(?:\.|$)`), domain.ActionReminder},
	{regexp.MustCompile(`(?i)\bdon't forget\s+(.+?)(?:\.|$)`), domain.ActionReminder},
	{regexp.MustCompile(`(?i)\b(?:by|due|before)\s+(?:eod|end of (?:day|week)|tomorrow|tonight|next week|monday|tuesday|wednesday|thursday|friday)\b`), domain.ActionDeadline},
}

var decisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdecided\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\blet's\s+go\s+with\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bwe(?:'re| are)\s+going\s+(?:to|with)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bagreed\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bconclusion:?\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bfinal\s+decision:?\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bapproved\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bconfirmed:?\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bsettled\s+on\s+(.+?)(?:\.|$)`),
}

var (
	importancePattern = regexp.MustCompile(`(?i)urgent|asap|critical|important|heads up|attention|fyi|announcement`)
	questionPattern   = regexp.MustCompile(`(?i)^(who|what|when|where|why|how|is|are|can|could|would|should|do|does|did)\b`)
	mentionPattern    = regexp.MustCompile(`@(\w+)`)
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9]`)
	wordPattern       = regexp.MustCompile(`[a-z']+`)
)

var stopWords = toSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "shall", "can", "need", "dare", "ought",
	"used", "to", "of", "in", "for", "on", "with", "at", "by", "from",
	"as", "into", "through", "during", "before", "after", "above", "below",
	"between", "out", "off", "over", "under", "again", "further", "then",
	"once", "here", "there", "when", "where", "why", "how", "all", "each",
	"every", "both", "few", "more", "most", "other", "some", "such", "no",
	"not", "only", "own", "same", "so", "than", "too", "very", "just",
	"because", "but", "and", "or", "if", "while", "about", "up", "what",
	"which", "who", "whom", "this", "that", "these", "those", "am", "it",
	"its", "i", "me", "my", "we", "our", "you", "your", "he", "him",
	"his", "she", "her", "they", "them", "their", "also", "get", "got",
	"like", "think", "know", "see", "come", "make", "go", "take", "want",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
