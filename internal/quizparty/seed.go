package quizparty

import (
	"context"
	"fmt"

	"github.com/enescakir/emoji"
	"github.com/google/uuid"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	"github.com/quizparty-games/quizparty/internal/logging"
)

type seedCategory struct {
	category  categoryModel.Category
	questions []string
}

var starterCategories = []seedCategory{
	{
		category: categoryModel.Category{
			Name:        "General Knowledge",
			Icon:        emoji.Brain.String(),
			Description: "A bit of everything. Fastest buzzer takes the floor.",
			Mode:        categoryModel.ModeBuzzer,
		},
		questions: []string{
			"Which planet in our solar system has the most moons?",
			"What is the only mammal capable of true flight?",
			"In which city would you find the Colosseum?",
			"What does the Richter scale measure?",
			"Which element has the chemical symbol Au?",
		},
	},
	{
		category: categoryModel.Category{
			Name:        "Music",
			Icon:        emoji.MusicalNotes.String(),
			Description: "Bands, hits and one-hit wonders.",
			Mode:        categoryModel.ModeBuzzer,
		},
		questions: []string{
			"Which band released the album 'Abbey Road'?",
			"What instrument has 88 keys?",
			"Which singer is known as the Queen of Pop?",
			"In which decade did vinyl records first outsell CDs again?",
			"Which country is the band ABBA from?",
		},
	},
	{
		category: categoryModel.Category{
			Name:        "Estimates",
			Icon:        emoji.Abacus.String(),
			Description: "Nobody knows the exact number. Closest written answer wins.",
			Mode:        categoryModel.ModeFreeText,
		},
		questions: []string{
			"How many keys does a standard grand piano have, counting pedals?",
			"How long is the Great Wall of China in kilometres?",
			"How many bones does an adult human body have?",
			"In what year was the first email sent?",
			"How many litres of water does an average bathtub hold?",
		},
	},
	{
		category: categoryModel.Category{
			Name:        "Movies",
			Icon:        emoji.ClapperBoard.String(),
			Description: "From classics to last summer's blockbusters.",
			Mode:        categoryModel.ModeBuzzer,
		},
		questions: []string{
			"Who directed the movie 'Jaws'?",
			"Which movie features the line 'May the Force be with you'?",
			"What is the name of the hobbit played by Elijah Wood?",
			"Which animated movie features a clownfish searching for his son?",
			"In which movie does a DeLorean travel through time?",
		},
	},
}

// SeedCategories loads the starter deck on first boot. A database that
// already holds any category is left untouched, custom decks included.
func SeedCategories(ctx context.Context, categories *categoryDb.DB) error {
	empty, err := categories.Empty()
	if err != nil {
		return fmt.Errorf("check categories: %w", err)
	}
	if !empty {
		return nil
	}

	for _, seed := range starterCategories {
		category := seed.category
		category.ID = uuid.New().String()
		if err := categories.Store(category); err != nil {
			return fmt.Errorf("store category %s: %w", category.Name, err)
		}

		for i, text := range seed.questions {
			template := categoryModel.Template{
				ID:         fmt.Sprintf("%s-%02d", category.ID, i),
				CategoryID: category.ID,
				Text:       text,
			}
			if err := categories.StoreTemplate(template); err != nil {
				return fmt.Errorf("store template: %w", err)
			}
		}
	}

	logging.FromContext(ctx).Named("quizparty.Manager").
		Infof("Seeded %d starter categories", len(starterCategories))

	return nil
}
