package faq

import (
	"fmt"
	"strings"
)

// Category is the subject area of an FAQ entry or query.
type Category string

const (
	Sales     Category = "sales"
	Marketing Category = "marketing"
	Products  Category = "products"
	Customers Category = "customers"
	Technical Category = "technical"
	Analytics Category = "analytics"
	General   Category = "general"
)

// Categories lists every category in keyword-table priority order.
var Categories = []Category{Sales, Marketing, Products, Customers, Technical, Analytics, General}

// Intent is what the operator wants to achieve with an FAQ entry.
type Intent string

const (
	IntentSalesImprovement  Intent = "sales_improvement"
	IntentMarketing         Intent = "marketing"
	IntentProductManagement Intent = "product_management"
	IntentCustomerService   Intent = "customer_service"
	IntentTechnicalSupport  Intent = "technical_support"
	IntentAnalytics         Intent = "analytics"
	IntentGeneral           Intent = "general"
)

var intents = []Intent{
	IntentSalesImprovement, IntentMarketing, IntentProductManagement,
	IntentCustomerService, IntentTechnicalSupport, IntentAnalytics, IntentGeneral,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ParseIntent validates an intent name. Empty maps to general.
func ParseIntent(s string) (Intent, error) {
	if s == "" {
		return IntentGeneral, nil
	}
	for _, i := range intents {
		if string(i) == s {
			return i, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// categoryKeywords is shared by query classification and conversation topic detection.
var categoryKeywords = map[Category][]string{
	Sales:     {"מכירות", "הכנסות", "רווח", "המרה", "עסקאות", "מחזור", "הזמנות", "קופון", "מבצע", "הנחה"},
	Marketing: {"שיווק", "פרסום", "קידום", "מודעות", "קמפיין", "סושיאל", "פייסבוק", "אינסטגרם", "ניוזלטר", "אימייל"},
	Products:  {"מוצר", "פריט", "מלאי", "קטלוג", "מחיר", "הזמנה", "ספק", "מחסן", "וריאציות", "מפרט"},
	Customers: {"לקוח", "שירות", "תמיכה", "פניה", "תלונה", "משוב", "החזרה", "זיכוי", "סטטוס", "משלוח"},
	Technical: {"התקנה", "הגדרות", "תקלה", "באג", "שגיאה", "עדכון", "גיבוי", "אבטחה", "הרשאות", "חיבור"},
	Analytics: {"נתונים", "דוח", "סטטיסטיקה", "ניתוח", "מגמות", "ביצועים", "גרף", "השוואה", "תקופה", "אנליטיקס"},
}

// MatchCategory returns the category with the most keyword hits in text and
// the hit count. Ties go to the earlier category in Categories; no hits
// yields (General, 0).
func MatchCategory(text string) (Category, int) {
	lower := strings.ToLower(text)
	best, bestHits := General, 0
	for _, c := range Categories {
		hits := 0
		for _, kw := range categoryKeywords[c] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c, hits
		}
	}
	return best, bestHits
}

// ClassifyCategory returns the keyword-classified category of a query.
func ClassifyCategory(query string) Category {
	c, _ := MatchCategory(query)
	return c
}
