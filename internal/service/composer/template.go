package composer

import (
	"bytes"
	"fmt"
	"html/template"
)

var emailTemplate = template.Must(template.New("expiration").Parse(`<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f44336; color: white; padding: 20px; text-align: center; }
        .content { background-color: #f9f9f9; padding: 20px; border-radius: 5px; }
        .product-info { background-color: white; padding: 15px; margin: 15px 0; border-radius: 5px; }
        .footer { text-align: center; color: #666; font-size: 12px; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Food Expiration Alert</h1>
        </div>
        <div class="content">
            <p>Hello,</p>
            <p>This is a reminder that one of your food items is approaching its expiration date:</p>
            <div class="product-info">
                <h3>{{.ProductName}}</h3>
                <p><strong>Expires in:</strong> {{.DaysUntil}} days</p>
                <p><strong>Expiration Date:</strong> {{.ExpirationDate}}</p>
                {{- if .ShopName}}
                <p><strong>Shop:</strong> {{.ShopName}}</p>
                {{- end}}
                {{- if .HasAmount}}
                <p><strong>Amount:</strong> {{.Amount}} {{.Unit}}</p>
                {{- end}}
            </div>
            <p>Please check your food items and consider using them soon or disposing of them properly.</p>
        </div>
        <div class="footer">
            <p>This is an automated message from your Food Expiration Tracker app.</p>
        </div>
    </div>
</body>
</html>
`))

// RenderEmail renders the HTML email body for p.
func RenderEmail(p TemplatePayload) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}
