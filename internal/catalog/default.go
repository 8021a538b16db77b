package catalog

import "chest/internal/models"

var defaultPrizes = []models.PrizeDefinition{
	{ID: "BONO_100", Label: "Bono del 100%", Rarity: "Común", Description: "Duplicá tu próxima carga", Icon: "gift-red", Code: "NOEL-100", Weight: 40},
	{ID: "BONO_150", Label: "Bono del 150%", Rarity: "Rara", Description: "Una carga y media extra", Icon: "gift-green", Code: "NOEL-150", Weight: 28},
	{ID: "BONO_200", Label: "Bono del 200%", Rarity: "Legendaria", Description: "El premio máximo del cofre", Icon: "crown", Code: "NOEL-200", Weight: 14},
	{ID: "BONO_ELECCION", Label: "Bono a elección", Rarity: "Épica", Description: "Elegí el bono que prefieras", Icon: "star", Code: "NOEL-ELEG", Weight: 10},
	{ID: "BONO_SORPRESA", Label: "Bono sorpresa", Rarity: "Misteriosa", Description: "Se revela al reclamarlo", Icon: "question", Code: "NOEL-SORP", Weight: 8},
}

// LegendaryID marks the top prize; the presentation layer gives it a special card.
const LegendaryID = "BONO_200"

// Default returns the built-in Christmas catalog.
func Default() *Catalog {
	return MustNew(defaultPrizes)
}
