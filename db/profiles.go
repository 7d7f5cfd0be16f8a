package db

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"rishta/models"
)

const profileColumns = `user_id, full_name, date_of_birth, gender, height, weight, complexion,
	physical_disability, email, phone_number, city, country, religion, caste, mother_tongue,
	languages_known, education_qualification, degree, profession, annual_income,
	professional_status, family_type, parents_occupation, siblings_details, family_value_system,
	preferred_age_min, preferred_age_max, preferred_height_min, preferred_height_max,
	expected_qualification, preferred_profession, preferred_location, marital_status_preference,
	hobbies, interests, dietary_preferences, smoking_habits, drinking_habits, profile_photo_url,
	created_at, updated_at`

// UpsertProfile inserts the profile or replaces every attribute of the
// existing one. created_at of an existing profile is kept.
func (db *DB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	languages, err := json.Marshal(nonNil(p.LanguagesKnown))
	if err != nil {
		return err
	}
	hobbies, err := json.Marshal(nonNil(p.Hobbies))
	if err != nil {
		return err
	}
	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return err
	}

	now := db.timestamp()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			date_of_birth = excluded.date_of_birth,
			gender = excluded.gender,
			height = excluded.height,
			weight = excluded.weight,
			complexion = excluded.complexion,
			physical_disability = excluded.physical_disability,
			email = excluded.email,
			phone_number = excluded.phone_number,
			city = excluded.city,
			country = excluded.country,
			religion = excluded.religion,
			caste = excluded.caste,
			mother_tongue = excluded.mother_tongue,
			languages_known = excluded.languages_known,
			education_qualification = excluded.education_qualification,
			degree = excluded.degree,
			profession = excluded.profession,
			annual_income = excluded.annual_income,
			professional_status = excluded.professional_status,
			family_type = excluded.family_type,
			parents_occupation = excluded.parents_occupation,
			siblings_details = excluded.siblings_details,
			family_value_system = excluded.family_value_system,
			preferred_age_min = excluded.preferred_age_min,
			preferred_age_max = excluded.preferred_age_max,
			preferred_height_min = excluded.preferred_height_min,
			preferred_height_max = excluded.preferred_height_max,
			expected_qualification = excluded.expected_qualification,
			preferred_profession = excluded.preferred_profession,
			preferred_location = excluded.preferred_location,
			marital_status_preference = excluded.marital_status_preference,
			hobbies = excluded.hobbies,
			interests = excluded.interests,
			dietary_preferences = excluded.dietary_preferences,
			smoking_habits = excluded.smoking_habits,
			drinking_habits = excluded.drinking_habits,
			profile_photo_url = excluded.profile_photo_url,
			updated_at = excluded.updated_at`,
		p.UserID, p.FullName, p.DateOfBirth, p.Gender, p.Height, p.Weight, p.Complexion,
		p.PhysicalDisability, p.Email, p.PhoneNumber, p.City, p.Country, p.Religion, p.Caste, p.MotherTongue,
		string(languages), p.EducationQualification, p.Degree, p.Profession, p.AnnualIncome,
		p.ProfessionalStatus, p.FamilyType, p.ParentsOccupation, p.SiblingsDetails, p.FamilyValueSystem,
		p.PreferredAgeMin, p.PreferredAgeMax, p.PreferredHeightMin, p.PreferredHeightMax,
		p.ExpectedQualification, p.PreferredProfession, p.PreferredLocation, p.MaritalStatusPreference,
		string(hobbies), string(interests), p.DietaryPreferences, p.SmokingHabits, p.DrinkingHabits, p.ProfilePhotoURL,
		now, now,
	)
	if err != nil {
		return translate(err, "db.UpsertProfile")
	}

	stored, err := db.GetProfile(ctx, p.UserID)
	if err != nil {
		return err
	}
	*p = stored
	return nil
}

func (db *DB) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE user_id = ?", userID)
	p, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, translate(err, "db.GetProfile")
	}
	return p, nil
}

// SearchProfiles returns profiles matching every non-zero field of f, most
// recently updated first. Age bounds are evaluated at now against the stored
// date of birth; profiles without one never match an age bound.
func (db *DB) SearchProfiles(ctx context.Context, f models.ProfileFilter, now time.Time) ([]models.Profile, error) {
	var where []string
	var args []interface{}

	eq := func(column, value string) {
		if value != "" {
			where = append(where, column+" = ? COLLATE NOCASE")
			args = append(args, value)
		}
	}
	eq("gender", f.Gender)
	eq("religion", f.Religion)
	eq("caste", f.Caste)
	eq("mother_tongue", f.MotherTongue)
	eq("city", f.City)
	eq("country", f.Country)
	eq("profession", f.Profession)

	if f.MinAge > 0 {
		// born on or before now - MinAge years
		where = append(where, "date_of_birth <> '' AND date_of_birth <= ?")
		args = append(args, now.AddDate(-f.MinAge, 0, 0).Format(models.DateLayout))
	}
	if f.MaxAge > 0 {
		// born after now - (MaxAge+1) years
		where = append(where, "date_of_birth <> '' AND date_of_birth > ?")
		args = append(args, now.AddDate(-(f.MaxAge+1), 0, 0).Format(models.DateLayout))
	}
	if f.MinHeight > 0 {
		where = append(where, "height >= ?")
		args = append(args, f.MinHeight)
	}
	if f.MaxHeight > 0 {
		where = append(where, "height > 0 AND height <= ?")
		args = append(args, f.MaxHeight)
	}
	if f.ExcludeUserID != "" {
		where = append(where, "user_id <> ?")
		args = append(args, f.ExcludeUserID)
	}

	query := "SELECT " + profileColumns + " FROM profiles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, user_id LIMIT ? OFFSET ?"

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "db.SearchProfiles")
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, translate(err, "db.SearchProfiles.Scan")
		}
		profiles = append(profiles, p)
	}
	return profiles, translate(rows.Err(), "db.SearchProfiles")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(s scanner) (models.Profile, error) {
	var p models.Profile
	var languages, hobbies, interests, created, updated string
	err := s.Scan(
		&p.UserID, &p.FullName, &p.DateOfBirth, &p.Gender, &p.Height, &p.Weight, &p.Complexion,
		&p.PhysicalDisability, &p.Email, &p.PhoneNumber, &p.City, &p.Country, &p.Religion, &p.Caste, &p.MotherTongue,
		&languages, &p.EducationQualification, &p.Degree, &p.Profession, &p.AnnualIncome,
		&p.ProfessionalStatus, &p.FamilyType, &p.ParentsOccupation, &p.SiblingsDetails, &p.FamilyValueSystem,
		&p.PreferredAgeMin, &p.PreferredAgeMax, &p.PreferredHeightMin, &p.PreferredHeightMax,
		&p.ExpectedQualification, &p.PreferredProfession, &p.PreferredLocation, &p.MaritalStatusPreference,
		&hobbies, &interests, &p.DietaryPreferences, &p.SmokingHabits, &p.DrinkingHabits, &p.ProfilePhotoURL,
		&created, &updated,
	)
	if err != nil {
		return models.Profile{}, err
	}
	if err := json.Unmarshal([]byte(languages), &p.LanguagesKnown); err != nil {
		return models.Profile{}, err
	}
	if err := json.Unmarshal([]byte(hobbies), &p.Hobbies); err != nil {
		return models.Profile{}, err
	}
	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return models.Profile{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return models.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
