// Package domain defines the core experiment model: variants, behavioral
// events, and the experiment lifecycle record shared by the gateway,
// evaluator, and lifecycle controller.
package domain
