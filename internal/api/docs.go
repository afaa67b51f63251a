package api

// @title Schwab Gateway API
// @version 1.0
// @description Thin HTTP gateway over the Schwab Trader and Market Data APIs.

// @license.name MIT

// @host localhost:8000
// @BasePath /

// @tag.name Health
// @tag.description Liveness

// @tag.name Accounts
// @tag.description OAuth login flow and account balances

// @tag.name Orders
// @tag.description Order placement

// @tag.name MarketData
// @tag.description Price history candles
