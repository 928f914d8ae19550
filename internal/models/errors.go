package models

import "errors"

var (
	// ErrUserNotFound means the Telegram ID has no row in users. Draw
	// operations never create users implicitly; /start does.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyCatalog means a draw was attempted against an empty card set.
	ErrEmptyCatalog = errors.New("card catalog is empty")

	// ErrAdviceLimit means the user already drew the daily maximum of
	// advice cards.
	ErrAdviceLimit = errors.New("daily advice limit reached")

	// ErrInsufficientFish means the balance does not cover a paid spread.
	ErrInsufficientFish = errors.New("insufficient fish balance")

	// ErrPaymentNotFound means the payment row does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
)
