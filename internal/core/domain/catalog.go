package domain

import "github.com/shopspring/decimal"

type Customer struct {
	ID    string
	Name  string
	Email string
}

type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
}
