package alias

// Bucket is a semantic group of column names that commonly stand for the same
// kind of field. A target field pulls in a bucket's aliases when the field
// name and the bucket key overlap textually ("category" ~ "sub_category").
type Bucket struct {
	Key     string
	Aliases []string
}

// DefaultBuckets is the curated alias table. Order matters only for the order
// in which aliases are tried, which does not change the outcome.
var DefaultBuckets = []Bucket{
	{Key: "id", Aliases: []string{
		"id", "identifier", "key", "pk", "primary_key", "uid", "uuid", "guid", "reference",
		"ref", "item_id", "record_id", "unique_id", "entity_id", "object_id", "row_id",
		"index", "idx", "serial", "sequence", "number", "num", "#",
	}},
	{Key: "name", Aliases: []string{
		"name", "title", "label", "description", "heading", "header", "caption",
		"full_name", "display_name", "username", "user_name", "screen_name",
		"first_name", "last_name", "surname", "family_name", "given_name",
		"fname", "lname", "nickname", "alias", "handle", "moniker",
	}},
	{Key: "text", Aliases: []string{
		"text", "content", "body", "message", "question", "prompt", "description",
		"details", "summary", "abstract", "excerpt", "snippet", "passage",
		"paragraph", "statement", "query", "input", "output", "response",
		"comment", "note", "remark", "observation", "feedback", "review",
		"article", "post", "blog", "essay", "story", "narrative", "copy",
	}},
	{Key: "category", Aliases: []string{
		"category", "cat", "type", "kind", "genre", "topic", "subject",
		"classification", "class", "group", "section", "department", "division",
		"tag", "tags", "label", "labels", "theme", "area", "domain", "field",
		"discipline", "specialty", "branch", "segment", "cluster", "bucket",
		"taxonomy", "hierarchy", "subcategory", "sub_category",
	}},
	{Key: "difficulty", Aliases: []string{
		"difficulty", "level", "hard", "complexity", "diff", "grade",
		"skill_level", "proficiency", "expertise", "competency", "tier",
		"rank", "rating", "intensity", "challenge", "hardness", "ease",
		"beginner", "intermediate", "advanced", "expert", "novice",
	}},
	{Key: "score", Aliases: []string{
		"score", "points", "rating", "value", "mark", "grade", "result",
		"evaluation", "assessment", "performance", "achievement", "outcome",
		"total", "sum", "count", "tally", "percentage", "percent", "%",
		"rank", "ranking", "position", "place", "standing",
	}},
	{Key: "answer", Aliases: []string{
		"answer", "correct_answer", "solution", "correct", "right_answer",
		"response", "reply", "result", "outcome", "conclusion", "resolution",
		"key", "correct_option", "right_option", "true_answer", "actual",
	}},
	{Key: "answers", Aliases: []string{
		"answers", "options", "choices", "alternatives", "selections",
		"possibilities", "variants", "candidates", "items", "elements",
		"list", "array", "collection", "set", "multiple_choice", "mcq",
	}},
	{Key: "date", Aliases: []string{
		"date", "created", "timestamp", "time", "datetime", "created_at",
		"updated_at", "modified", "last_modified", "published", "published_at",
		"start_date", "end_date", "due_date", "expiry", "expiration",
		"birth_date", "dob", "date_of_birth", "year", "month", "day",
		"created_on", "updated_on", "issued", "effective_date",
	}},
	{Key: "price", Aliases: []string{
		"price", "cost", "amount", "value", "fee", "charge", "rate",
		"salary", "wage", "income", "revenue", "profit", "loss", "expense",
		"budget", "total", "subtotal", "tax", "discount", "premium",
		"balance", "payment", "billing", "invoice", "quote", "estimate",
	}},
	{Key: "email", Aliases: []string{
		"email", "mail", "e_mail", "email_address", "mail_address",
		"electronic_mail", "contact_email", "work_email", "personal_email",
		"business_email", "primary_email", "secondary_email", "@",
	}},
	{Key: "phone", Aliases: []string{
		"phone", "telephone", "mobile", "cell", "phone_number", "tel",
		"mobile_number", "cell_number", "landline", "home_phone", "work_phone",
		"business_phone", "contact_number", "primary_phone", "secondary_phone",
		"cellphone", "smartphone", "office_phone",
	}},
}
