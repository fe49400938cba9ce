package i18n

import "fmt"

// Table carries every user-facing string and prompt template for one language.
// The rest of the app treats it as an opaque string factory.
type Table struct {
	InitialGreeting func(firstName string) string
	IdentifyPrompt  func(languageName, languageTag string) string
	QuestionPrompt  func(question string) string
	HowToQuery      func(objectName string) string

	PartialUnderstandingPrefix string

	CameraNotSupportedError string
	CameraPermissionError   string
	CameraDeviceError       string
	CaptureFrameError       string
	AINotConfiguredError    string

	ListeningStatus string
	AnalyzingStatus string
}

// identifySchema is the structured-response contract sent to the model.
// The gateway strips an optional fenced code block before decoding it.
const identifySchema = `{
  "objectName": "short name of the main object",
  "description": "two to three sentence description in English",
  "translatedDescription": "the same description in %s",
  "otherObjects": [{"name": "...", "description": "..."}],
  "detectedText": {"original": "...", "translated": "..."},
  "isCommercial": true,
  "productInfo": {"brand": "...", "model": "..."},
  "searchQuery": "a web shopping search query for the product, if commercial",
  "ambient": {"lighting": "...", "temperature": "..."}
}`

func identifyPrompt(languageName, languageTag string) string {
	return fmt.Sprintf(`You are a visual assistant. Identify the main object in the image and respond with ONLY a JSON object in this exact shape:

%s

Omit optional keys you cannot fill. "translatedDescription" must be written in %s (%s). Do not add commentary outside the JSON.`,
		fmt.Sprintf(identifySchema, languageName), languageName, languageTag)
}

var tables = map[string]Table{
	"en-US": {
		InitialGreeting: func(firstName string) string {
			return fmt.Sprintf("Hello %s! Point your camera at an object and hold the scan button to learn about it.", firstName)
		},
		IdentifyPrompt: identifyPrompt,
		QuestionPrompt: func(question string) string {
			return fmt.Sprintf("Answer the following question about the object in the image, briefly and in English: %s", question)
		},
		HowToQuery: func(objectName string) string {
			return fmt.Sprintf("how to use %s", objectName)
		},
		PartialUnderstandingPrefix: "I see the following: ",
		CameraNotSupportedError:    "Your device does not offer a camera.",
		CameraPermissionError:      "Camera access was denied. Please allow camera access and reload.",
		CameraDeviceError:          "The camera could not be started.",
		CaptureFrameError:          "Could not capture a frame from the camera.",
		AINotConfiguredError:       "The AI service is not configured. Set an API key and reload.",
		ListeningStatus:            "Listening...",
		AnalyzingStatus:            "Analyzing...",
	},
	"tr-TR": {
		InitialGreeting: func(firstName string) string {
			return fmt.Sprintf("Merhaba %s! Kamerani bir nesneye dogrult ve hakkinda bilgi almak icin tarama dugmesini basili tut.", firstName)
		},
		IdentifyPrompt: identifyPrompt,
		QuestionPrompt: func(question string) string {
			return fmt.Sprintf("Goruntudeki nesneyle ilgili su soruyu kisaca ve Turkce yanitla: %s", question)
		},
		HowToQuery: func(objectName string) string {
			return fmt.Sprintf("%s nasil kullanilir", objectName)
		},
		PartialUnderstandingPrefix: "Sunlari goruyorum: ",
		CameraNotSupportedError:    "Cihazinizda kamera bulunmuyor.",
		CameraPermissionError:      "Kamera erisimi reddedildi. Lutfen izin verip sayfayi yenileyin.",
		CameraDeviceError:          "Kamera baslatilamadi.",
		CaptureFrameError:          "Kameradan kare alinamadi.",
		AINotConfiguredError:       "Yapay zeka servisi yapilandirilmamis. Bir API anahtari ayarlayip yeniden yukleyin.",
		ListeningStatus:            "Dinleniyor...",
		AnalyzingStatus:            "Analiz ediliyor...",
	},
	"es-ES": {
		InitialGreeting: func(firstName string) string {
			return fmt.Sprintf("Hola %s! Apunta la camara a un objeto y manten pulsado el boton de escaneo para conocerlo.", firstName)
		},
		IdentifyPrompt: identifyPrompt,
		QuestionPrompt: func(question string) string {
			return fmt.Sprintf("Responde brevemente y en espanol a la siguiente pregunta sobre el objeto de la imagen: %s", question)
		},
		HowToQuery: func(objectName string) string {
			return fmt.Sprintf("como usar %s", objectName)
		},
		PartialUnderstandingPrefix: "Veo lo siguiente: ",
		CameraNotSupportedError:    "Tu dispositivo no dispone de camara.",
		CameraPermissionError:      "Se denego el acceso a la camara. Permite el acceso y recarga.",
		CameraDeviceError:          "No se pudo iniciar la camara.",
		CaptureFrameError:          "No se pudo capturar un fotograma de la camara.",
		AINotConfiguredError:       "El servicio de IA no esta configurado. Configura una clave de API y recarga.",
		ListeningStatus:            "Escuchando...",
		AnalyzingStatus:            "Analizando...",
	},
}

var languageNames = map[string]string{
	"en-US": "English",
	"tr-TR": "Turkish",
	"es-ES": "Spanish",
}

// For returns the table for the given tag, falling back to en-US.
func For(tag string) Table {
	if t, ok := tables[tag]; ok {
		return t
	}
	return tables["en-US"]
}

// LanguageName returns the full English name of the language tag.
func LanguageName(tag string) string {
	if n, ok := languageNames[tag]; ok {
		return n
	}
	return "English"
}

// Tags lists the supported language tags.
func Tags() []string {
	return []string{"en-US", "tr-TR", "es-ES"}
}

// Supported reports whether the tag has a translation table.
func Supported(tag string) bool {
	_, ok := tables[tag]
	return ok
}
