package checkout

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Champs collectés dans l'ordre strict, sans navigation arrière.
type Field int

const (
	FieldFullName Field = iota
	FieldStreet
	FieldUnit
	FieldCity
	FieldState
	FieldPostalCode
)

// Sentinelles acceptées pour laisser le numéro d'appartement vide.
var unitSentinels = map[string]bool{"aucun": true, "aucune": true, "none": true, "non": true}

var (
	// ErrDejaEnCours : un seul checkout en vol par utilisateur.
	ErrDejaEnCours = errors.New("checkout: déjà en cours pour cet utilisateur")

	// ErrAucunDialogue : message texte reçu hors de tout dialogue actif.
	ErrAucunDialogue = errors.New("checkout: aucun dialogue en cours")
)

// ValidationError : l'entrée est refusée, on redemande le même champ sans
// avancer l'état ni toucher la moindre entité persistée.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return "checkout: entrée invalide: " + e.Reason
}

// Form est la capture des six champs d'expédition, remise telle quelle au
// gestionnaire de commandes à la fin du dialogue.
type Form struct {
	FullName   string
	Street     string
	Unit       string
	City       string
	State      string
	PostalCode string
}

// Result décrit l'avancement après une soumission acceptée.
type Result struct {
	// Done : dernier champ accepté, Form est complet, l'état de dialogue est
	// déjà nettoyé ; le garde-fou de réentrance reste posé jusqu'à Release.
	Done bool

	// NextField : prochain champ à demander quand Done est faux.
	NextField Field

	Form *Form
}

type session struct {
	field     Field
	form      Form
	updatedAt time.Time
}

// Manager est la machine à états de collecte d'adresse, un dialogue par
// utilisateur. Tout l'état mutable est derrière un même verrou : deux
// messages concurrents du même utilisateur se sérialisent ici.
type Manager struct {
	mu         sync.Mutex
	sessions   map[int64]*session
	inFlight   map[int64]bool
	staleAfter time.Duration

	now func() time.Time
}

func NewManager(staleAfter time.Duration) *Manager {
	return &Manager{
		sessions:   make(map[int64]*session),
		inFlight:   make(map[int64]bool),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Begin démarre un dialogue pour l'utilisateur et retourne le premier champ
// à demander. Refuse si un checkout est déjà en vol.
func (m *Manager) Begin(userID int64) (Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardIfStale(userID)

	if m.inFlight[userID] {
		return 0, ErrDejaEnCours
	}

	m.inFlight[userID] = true
	m.sessions[userID] = &session{field: FieldFullName, updatedAt: m.now()}
	return FieldFullName, nil
}

// Active indique si un dialogue attend une saisie de cet utilisateur.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardIfStale(userID)
	_, ok := m.sessions[userID]
	return ok
}

// Submit valide la saisie pour le champ courant et avance la machine.
// Sur le dernier champ, l'état de dialogue est retiré et le formulaire
// complet est rendu à l'appelant ; le garde-fou reste posé jusqu'à Release
// pour couvrir la création de commande qui suit.
func (m *Manager) Submit(userID int64, value string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardIfStale(userID)

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrAucunDialogue
	}

	value = strings.TrimSpace(value)
	if err := validate(s.field, value); err != nil {
		// Même champ redemandé, état inchangé.
		s.updatedAt = m.now()
		return nil, err
	}

	s.apply(value)
	s.updatedAt = m.now()

	if s.field == FieldPostalCode {
		form := s.form
		delete(m.sessions, userID)
		return &Result{Done: true, Form: &form}, nil
	}

	s.field++
	return &Result{NextField: s.field}, nil
}

// Release lève le garde-fou de réentrance. À appeler après la création de
// commande, qu'elle ait réussi ou non, et sur toute erreur irrécupérable.
func (m *Manager) Release(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	delete(m.inFlight, userID)
}

// Cancel abandonne le dialogue et lève le garde-fou sans condition.
// Retourne vrai si quelque chose était effectivement en cours.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, active := m.sessions[userID]
	active = active || m.inFlight[userID]
	delete(m.sessions, userID)
	delete(m.inFlight, userID)
	return active
}

// discardIfStale : un dialogue resté muet trop longtemps est une annulation
// implicite, purgée paresseusement au prochain accès. Verrou déjà tenu.
func (m *Manager) discardIfStale(userID int64) {
	s, ok := m.sessions[userID]
	if !ok {
		return
	}
	if m.now().Sub(s.updatedAt) > m.staleAfter {
		delete(m.sessions, userID)
		delete(m.inFlight, userID)
	}
}

func (s *session) apply(value string) {
	switch s.field {
	case FieldFullName:
		s.form.FullName = value
	case FieldStreet:
		s.form.Street = value
	case FieldUnit:
		if unitSentinels[strings.ToLower(value)] {
			s.form.Unit = ""
		} else {
			s.form.Unit = value
		}
	case FieldCity:
		s.form.City = value
	case FieldState:
		s.form.State = value
	case FieldPostalCode:
		s.form.PostalCode = value
	}
}

func validate(f Field, value string) error {
	switch f {
	case FieldFullName:
		if len(value) < 3 {
			return &ValidationError{f, "nom complet trop court"}
		}
	case FieldStreet:
		if len(value) < 5 {
			return &ValidationError{f, "adresse trop courte"}
		}
	case FieldUnit:
		if value == "" {
			return &ValidationError{f, "numéro d'appartement vide (répondre « aucun » s'il n'y en a pas)"}
		}
	case FieldCity:
		if len(value) < 2 {
			return &ValidationError{f, "ville trop courte"}
		}
	case FieldState:
		if len(value) < 2 {
			return &ValidationError{f, "région trop courte"}
		}
	case FieldPostalCode:
		if len(value) < 3 || !isPostalCode(value) {
			return &ValidationError{f, "code postal invalide"}
		}
	}
	return nil
}

// isPostalCode : alphanumérique plus espace et tiret.
func isPostalCode(value string) bool {
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// Prompt retourne la question à poser pour un champ.
func (f Field) Prompt() string {
	switch f {
	case FieldFullName:
		return "📦 Quel est votre nom complet ?"
	case FieldStreet:
		return "🏠 Quelle est votre adresse (rue et numéro) ?"
	case FieldUnit:
		return "🚪 Numéro d'appartement ? (répondre « aucun » s'il n'y en a pas)"
	case FieldCity:
		return "🏙️ Quelle est votre ville ?"
	case FieldState:
		return "🗺️ Quelle est votre région / état ?"
	case FieldPostalCode:
		return "✉️ Quel est votre code postal ?"
	default:
		return ""
	}
}
