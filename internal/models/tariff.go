package models

// Tariff maps a top-up amount in rubles to the fish credited, part of which
// is a bonus shown separately in the payment bot.
type Tariff struct {
	AmountRub int
	TotalFish int
	BonusFish int
}

// Tariffs is the fixed price list of the payment bot, cheapest first.
var Tariffs = []Tariff{
	{AmountRub: 50, TotalFish: 350, BonusFish: 0},
	{AmountRub: 150, TotalFish: 1050, BonusFish: 150},
	{AmountRub: 300, TotalFish: 2100, BonusFish: 400},
	{AmountRub: 650, TotalFish: 4550, BonusFish: 1000},
}

// TariffByAmount returns the tariff for the given ruble amount.
func TariffByAmount(rub int) (Tariff, bool) {
	for _, t := range Tariffs {
		if t.AmountRub == rub {
			return t, true
		}
	}
	return Tariff{}, false
}
