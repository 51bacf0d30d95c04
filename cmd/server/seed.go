package main

import "github.com/nexusflow/ticketclass/internal/graphstore"

// seedTaxonomy is the starting three-level hierarchy loaded at startup.
// LoadHierarchy is idempotent, so restarting with the same tree never
// resets ticket_count/accuracy on an already-present node; expanding it
// (via internal/learning's taxonomy-expansion path) only ever adds nodes
// this seed doesn't already define.
func seedTaxonomy() graphstore.HierarchyTree {
	return graphstore.HierarchyTree{
		L1: []graphstore.L1Node{
			{
				Name:        "Technical Support",
				Description: "Product defects, login and access problems",
				Keywords:    []string{"error", "bug", "crash", "login", "access"},
				L2: []graphstore.L2Node{
					{
						Name:        "Authentication",
						Description: "Sign-in and credential issues",
						Keywords:    []string{"password", "login", "2fa", "session"},
						L3: []graphstore.L3Node{
							{Name: "Password Reset Issues", Description: "Customer cannot reset or change their password", Keywords: []string{"password", "reset", "forgot"}},
							{Name: "Account Lockout", Description: "Account locked after failed sign-in attempts", Keywords: []string{"locked", "lockout", "suspended"}},
						},
					},
				},
			},
			{
				Name:        "Billing",
				Description: "Payments, invoices and refunds",
				Keywords:    []string{"charge", "invoice", "payment", "refund"},
				L2: []graphstore.L2Node{
					{
						Name:        "Payments",
						Description: "Charge and transaction failures",
						Keywords:    []string{"card", "declined", "transaction"},
						L3: []graphstore.L3Node{
							{Name: "Failed Transactions", Description: "A charge did not go through", Keywords: []string{"declined", "failed", "charge"}},
						},
					},
					{
						Name:        "Refunds",
						Description: "Refund requests and status",
						Keywords:    []string{"refund", "chargeback", "reimburse"},
						L3: []graphstore.L3Node{
							{Name: "Refund Status", Description: "Customer asking where a refund is", Keywords: []string{"refund", "status", "pending"}},
						},
					},
				},
			},
			{
				Name:        "Account Management",
				Description: "Account security and settings",
				Keywords:    []string{"account", "settings", "security"},
				L2: []graphstore.L2Node{
					{
						Name:        "Security",
						Description: "Suspicious or unauthorized activity",
						Keywords:    []string{"suspicious", "fraud", "unauthorized"},
						L3: []graphstore.L3Node{
							{Name: "Suspicious Activity", Description: "Customer reporting unrecognized account activity", Keywords: []string{"suspicious", "unauthorized", "fraud"}},
						},
					},
				},
			},
		},
	}
}
