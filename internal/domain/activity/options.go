package activity

// ListActivityOptions filters a tenant's activity. Nil filters match
// everything; a zero Limit means the service maximum.
type ListActivityOptions struct {
	SubjectType *SubjectType
	SubjectID   *string
	Kind        *Kind
	Limit       int
	Offset      int
}
