package task

// keywords drives classification. Types absent from the table (general_question,
// error) are never selected by keyword score.
var keywords = map[Type][]string{
	ProductInfo: {
		"מוצר", "פריט", "מחיר", "קטלוג", "מפרט", "תמונה",
		"תיאור", "זמין", "במלאי", "וריאציות", "מידות", "צבעים",
	},
	OrderStatus: {
		"הזמנה", "משלוח", "סטטוס", "מעקב", "איסוף", "החזרה",
		"ביטול", "מספר הזמנה", "תאריך", "כתובת", "אספקה", "שליח",
	},
	SalesReport: {
		"מכירות", "דוח", "הכנסות", "רווח", "סטטיסטיקה", "נתונים",
		"מגמות", "ביצועים", "תקופה", "השוואה", "גרף", "אנליטיקס",
	},
	Marketing: {
		"שיווק", "פרסום", "קמפיין", "קידום", "מבצע", "הנחה",
		"סושיאל", "פייסבוק", "אינסטגרם", "מייל", "ניוזלטר",
	},
	Inventory: {
		"מלאי", "כמות", "הזמנה מספק", "מחסן", "ספירה", "מינימום",
		"מקסימום", "התראה", "חוסר", "עודף", "תנועות",
	},
	CustomerService: {
		"לקוח", "תלונה", "פנייה", "שירות", "תמיכה", "החזר",
		"זיכוי", "שאלה", "בעיה", "עזרה", "צאט",
	},
	Technical: {
		"תקלה", "באג", "שגיאה", "התקנה", "עדכון", "גיבוי",
		"אבטחה", "הגדרות", "חיבור", "ממשק", "אפליקציה",
	},
	StoreAdvice: {
		"המלצה", "ייעוץ", "שיפור", "אופטימיזציה", "אסטרטגיה",
		"תכנון", "פיתוח", "גדילה", "מתחרים", "שוק",
	},
}
