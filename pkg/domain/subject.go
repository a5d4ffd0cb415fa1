package domain

// SubjectSummary is one entry of a collection index.
// The wire keys follow the stored index format ("slug", "company").
type SubjectSummary struct {
	Identity     string `json:"slug" mapstructure:"slug"`
	Name         string `json:"name" mapstructure:"name"`
	Organization string `json:"company,omitempty" mapstructure:"company"`
	Title        string `json:"title,omitempty" mapstructure:"title"`
	Location     string `json:"location,omitempty" mapstructure:"location"`
	Phone        string `json:"phone,omitempty" mapstructure:"phone"`
	CompanyPhone string `json:"company_phone,omitempty" mapstructure:"company_phone"`
}

// ContactNumber returns the direct phone, falling back to the company line.
func (s SubjectSummary) ContactNumber() string {
	if s.Phone != "" {
		return s.Phone
	}
	return s.CompanyPhone
}
