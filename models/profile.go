package models

import "time"

const DateLayout = "2006-01-02"

// Profile holds the personal and partner-preference attributes a user fills in.
type Profile struct {
	UserID string `json:"user_id"`

	FullName           string  `json:"full_name" validate:"required,max=120"`
	DateOfBirth        string  `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender             string  `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Height             float64 `json:"height,omitempty" validate:"omitempty,gt=50,lt=260"`
	Weight             float64 `json:"weight,omitempty" validate:"omitempty,gt=20,lt=400"`
	Complexion         string  `json:"complexion,omitempty" validate:"max=40"`
	PhysicalDisability string  `json:"physical_disability,omitempty" validate:"max=200"`

	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	City        string `json:"city,omitempty" validate:"max=80"`
	Country     string `json:"country,omitempty" validate:"max=80"`

	Religion       string   `json:"religion,omitempty" validate:"max=60"`
	Caste          string   `json:"caste,omitempty" validate:"max=60"`
	MotherTongue   string   `json:"mother_tongue,omitempty" validate:"max=60"`
	LanguagesKnown []string `json:"languages_known,omitempty" validate:"max=20,dive,max=40"`

	EducationQualification string  `json:"education_qualification,omitempty" validate:"max=120"`
	Degree                 string  `json:"degree,omitempty" validate:"max=120"`
	Profession             string  `json:"profession,omitempty" validate:"max=120"`
	AnnualIncome           float64 `json:"annual_income,omitempty" validate:"gte=0"`
	ProfessionalStatus     string  `json:"professional_status,omitempty" validate:"max=60"`

	FamilyType        string `json:"family_type,omitempty" validate:"max=60"`
	ParentsOccupation string `json:"parents_occupation,omitempty" validate:"max=200"`
	SiblingsDetails   string `json:"siblings_details,omitempty" validate:"max=500"`
	FamilyValueSystem string `json:"family_value_system,omitempty" validate:"max=60"`

	PreferredAgeMin         int     `json:"preferred_age_min,omitempty" validate:"omitempty,gte=18,lte=100"`
	PreferredAgeMax         int     `json:"preferred_age_max,omitempty" validate:"omitempty,gte=18,lte=100,gtefield=PreferredAgeMin"`
	PreferredHeightMin      float64 `json:"preferred_height_min,omitempty" validate:"gte=0"`
	PreferredHeightMax      float64 `json:"preferred_height_max,omitempty" validate:"omitempty,gtefield=PreferredHeightMin"`
	ExpectedQualification   string  `json:"expected_qualification,omitempty" validate:"max=120"`
	PreferredProfession     string  `json:"preferred_profession,omitempty" validate:"max=120"`
	PreferredLocation       string  `json:"preferred_location,omitempty" validate:"max=120"`
	MaritalStatusPreference string  `json:"marital_status_preference,omitempty" validate:"max=60"`

	Hobbies            []string `json:"hobbies,omitempty" validate:"max=30,dive,max=60"`
	Interests          []string `json:"interests,omitempty" validate:"max=30,dive,max=60"`
	DietaryPreferences string   `json:"dietary_preferences,omitempty" validate:"max=60"`
	SmokingHabits      bool     `json:"smoking_habits"`
	DrinkingHabits     bool     `json:"drinking_habits"`

	ProfilePhotoURL string `json:"profile_photo_url,omitempty" validate:"omitempty,url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Age returns the completed years since DateOfBirth at now, or 0 when unknown.
func (p Profile) Age(now time.Time) int {
	dob, err := time.Parse(DateLayout, p.DateOfBirth)
	if err != nil {
		return 0
	}
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// ProfileFilter selects profiles by equality on the string fields and by
// inclusive ranges on age and height. Zero values are ignored.
type ProfileFilter struct {
	Gender       string
	Religion     string
	Caste        string
	MotherTongue string
	City         string
	Country      string
	Profession   string

	MinAge    int
	MaxAge    int
	MinHeight float64
	MaxHeight float64

	ExcludeUserID string
	Limit         int
	Offset        int
}
