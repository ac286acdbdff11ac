// Package main Transaction Reconciler API
//
//	@title						Transaction Reconciler API
//	@version					1.0
//	@description				Payment, settlement and refund lifecycle service. Provider webhooks are reconciled against the provider's own status before they are applied.
//
//	@contact.name				Paylink Payments Team
//
//	@license.name				Proprietary
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator bearer token. Format: "Bearer {token}"
//
//	@tag.name					Payment
//	@tag.description			Payment creation and lookup
//
//	@tag.name					Transaction
//	@tag.description			Transaction lookup
//
//	@tag.name					Refund
//	@tag.description			Customer and merchant refunds
//
//	@tag.name					Webhook
//	@tag.description			Provider status callbacks
package main
