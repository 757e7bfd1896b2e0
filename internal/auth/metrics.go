// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for auth metrics.
const (
	ResultSuccess   = "success"
	ResultInvalid   = "invalid"
	ResultThrottled = "throttled"
	ResultRejected  = "rejected"
	ResultError     = "error"
)

// LoginAttempts counts login outcomes.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// ResetConfirmations counts password reset confirmations by result.
var ResetConfirmations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_reset_confirmations_total",
		Help: "Total number of password reset confirmations by result",
	},
	[]string{"result"},
)

// OTPIssued counts issued one-time codes by purpose.
var OTPIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_otp_issued_total",
		Help: "Total number of one-time codes issued",
	},
	[]string{"purpose"},
)

// OTPVerifications counts verification attempts by purpose and reason.
var OTPVerifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_otp_verifications_total",
		Help: "Total number of one-time code verifications by reason",
	},
	[]string{"purpose", "reason"},
)

// DeliveryFailures counts notification sends that failed after retries.
var DeliveryFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_delivery_failures_total",
		Help: "Total number of failed one-time code deliveries",
	},
	[]string{"purpose"},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(ResetConfirmations)
	reg.MustRegister(OTPIssued)
	reg.MustRegister(OTPVerifications)
	reg.MustRegister(DeliveryFailures)
}
