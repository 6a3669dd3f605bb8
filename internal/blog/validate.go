package blog

import (
	"strings"
)

// Field length limits, matching the database schema expectations.
const (
	TitleMinLength       = 3
	TitleMaxLength       = 200
	ContentMinLength     = 10
	CategoryNameMin      = 2
	CategoryNameMax      = 50
	DescriptionMaxLength = 500
)

func validatePostInput(in PostInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Validationf("title cannot be empty")
	}
	if len(title) < TitleMinLength || len(title) > TitleMaxLength {
		return Validationf("title must be between %d and %d characters", TitleMinLength, TitleMaxLength)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Validationf("content cannot be empty")
	}
	if len(content) < ContentMinLength {
		return Validationf("content must have at least %d characters", ContentMinLength)
	}

	return nil
}

func validateCategoryInput(in CategoryInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Validationf("name cannot be empty")
	}
	if len(name) < CategoryNameMin || len(name) > CategoryNameMax {
		return Validationf("name must be between %d and %d characters", CategoryNameMin, CategoryNameMax)
	}

	if len(in.Description) > DescriptionMaxLength {
		return Validationf("description cannot exceed %d characters", DescriptionMaxLength)
	}

	return nil
}
