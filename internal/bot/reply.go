package bot

// Button est une action structurée que la passerelle chat rend comme elle
// veut (bouton inline, quick reply...). Action est un identifiant opaque
// du type "add_to_cart:3" ou "check_payment:<ref>".
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Reply est la valeur opaque rendue à la couche transport pour affichage.
type Reply struct {
	Text      string   `json:"text"`
	Buttons   []Button `json:"buttons,omitempty"`
	QRDataURI string   `json:"qr_data_uri,omitempty"`
}

func textReply(text string) *Reply {
	return &Reply{Text: text}
}

func (r *Reply) withButton(label, action string) *Reply {
	r.Buttons = append(r.Buttons, Button{Label: label, Action: action})
	return r
}
