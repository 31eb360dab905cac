package composer

import (
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/task"
)

const persona = `אתה עוזר חכם למנהלי חנות מקוונת. אתה עוזר בניהול מוצרים, מכירות, הזמנות ושירות לקוחות.
כללי כתיבה:
- תשובות קצרות וממוקדות, בנקודות ולא בפסקאות ארוכות
- טון מקצועי, ידידותי ומכבד
- הצע רעיונות לשיפור כשזה רלוונטי
- שלב אימוג'י מתאים: 📦 מוצרים, 💰 מכירות, 👥 לקוחות, 🛒 הזמנות, 📈 נתונים, ⚠️ בעיות, 💡 טיפים, ✅ הצלחה`

const noLiveData = `אין לך גישה לנתוני החנות בזמן אמת (מוצרים, הזמנות, מלאי או מכירות). אל תמציא מספרים או סטטוסים. כשהשאלה דורשת נתונים כאלה, אמור זאת במפורש והסבר היכן המנהל יכול למצוא אותם.`

const clarification = `אם הבקשה לא ברורה או חסר בה פרט חיוני, שאל שאלת הבהרה אחת קצרה לפני שאתה עונה ❓`

const groundingRules = `לפניך תשובה מאושרת ממאגר השאלות הנפוצות. התאם אותה לניסוח השאלה ולהקשר השיחה.
שמור על כל העובדות וההמלצות שבה, אל תוסיף עובדות חדשות, ואל תשנה את המבנה הכללי.`

// focus holds the task-specific part of the system prompt.
var focus = map[task.Type]string{
	task.GeneralQuestion: "המשימה: לענות על שאלה כללית של מנהל החנות. אם השאלה נוגעת לתחום מסוים, כוון אותו לפרטים שיעזרו לך לדייק.",
	task.ProductInfo:     "המשימה: מידע על מוצרים 📦. עזור בניסוח תיאורים, מפרטים, תמחור ווריאציות. הסבר אילו שדות בקטלוג כדאי לבדוק.",
	task.OrderStatus:     "המשימה: סטטוס הזמנות ומשלוחים 🛒. הסבר את שלבי הטיפול בהזמנה ואיך לבדוק סטטוס, מעקב, ביטול או החזרה בממשק החנות.",
	task.SalesReport:     "המשימה: ניתוח מכירות ודוחות 📈. הסבר אילו מדדים לבדוק, איך להשוות תקופות ואיך לזהות מגמות.",
	task.Marketing:       "המשימה: שיווק וקידום 💡. הצע רעיונות לקמפיינים, מבצעים, הנחות ותוכן לרשתות חברתיות ולניוזלטר.",
	task.Inventory:       "המשימה: ניהול מלאי 📦. עזור בהגדרת רמות מינימום, התראות חוסר, הזמנות מספקים וספירות מלאי.",
	task.CustomerService: "המשימה: שירות לקוחות 👥. עזור לנסח מענה לפניות ותלונות, ולהגדיר מדיניות החזרים וזיכויים באמפתיה.",
	task.Technical:       "המשימה: תמיכה טכנית ⚠️. אבחן תקלות שלב אחר שלב, והצע בדיקות הגדרות, עדכונים וגיבויים לפני פעולות מסוכנות.",
	task.StoreAdvice:     "המשימה: ייעוץ אסטרטגי לחנות 💡. תן המלצות מעשיות לשיפור, גדילה ובידול מול מתחרים, לפי סדר עדיפויות.",
	task.Error:           "המשימה: הבקשה הקודמת נכשלה. התנצל בקצרה והצע לנסח את השאלה מחדש.",
}

func focusFor(t task.Type) string {
	if f, ok := focus[t]; ok {
		return f
	}
	return focus[task.GeneralQuestion]
}

var topicLabels = map[faq.Category]string{
	faq.Sales:     "מכירות",
	faq.Marketing: "שיווק",
	faq.Products:  "מוצרים",
	faq.Customers: "לקוחות",
	faq.Technical: "טכני",
	faq.Analytics: "אנליטיקס",
	faq.General:   "כללי",
}

func topicLabel(c faq.Category) string {
	if l, ok := topicLabels[c]; ok {
		return l
	}
	return string(c)
}
